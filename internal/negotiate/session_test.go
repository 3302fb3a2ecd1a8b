package negotiate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/bootctl/internal/testutil/testlog"
)

const (
	gnutlsHandshake = "Processed 128 CA certificate(s).\n" +
		"Resolving 'example.test'...\n" +
		"- Certificate is trusted\n" +
		"- Handshake was completed\n" +
		"- Simple Client Mode:\n\n"

	gnutlsUntrusted = "Processed 128 CA certificate(s).\n" +
		"- Peer's certificate is NOT trusted\n" +
		"- Handshake was completed\n" +
		"- Simple Client Mode:\n\n"

	gnutlsMismatch = "Processed 128 CA certificate(s).\n" +
		"# The hostname in the certificate does NOT match 'example.test'\n" +
		"- Handshake was completed\n" +
		"- Simple Client Mode:\n\n"

	opensslHandshake = "CONNECTED(00000003)\n" +
		"depth=0 CN = example.test\n" +
		"SSL handshake has read 4096 bytes and written 384 bytes\n" +
		"    Verify return code: 0 (ok)\n" +
		"---\n"

	opensslUntrusted = "CONNECTED(00000003)\n" +
		"SSL handshake has read 4096 bytes and written 384 bytes\n" +
		"    Verify return code: 19 (self signed certificate in certificate chain)\n" +
		"---\n"
)

// scriptClient builds a candidate that fakes a transport client by printing
// canned stdout through sh.
func scriptClient(name string, script string) Client {
	return Client{Name: name, Template: []string{"sh", "-c", script}}
}

func printScript(output string) string {
	return "printf '%s' " + shellQuote(output)
}

func shellQuote(s string) string {
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'"'"'`
			continue
		}
		out += string(r)
	}
	return out + "'"
}

func testNegotiator(t *testing.T, policy Policy, confirm Confirmer, clients ...Client) *Negotiator {
	t.Helper()
	return New(Options{
		TrustFile:        "/dev/null",
		Policy:           policy,
		Confirm:          confirm,
		Clients:          clients,
		HandshakeTimeout: 5 * time.Second,
		PollInterval:     5 * time.Millisecond,
	})
}

func TestOpenStripsInformationalTextExactly(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-gnutls", printScript(gnutlsHandshake+"application data"))
	n := testNegotiator(t, PolicyNever, nil, client)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "application data", string(data))
	assert.Equal(t, "fake-gnutls", conn.ClientName())
	assert.NotEmpty(t, conn.ID())
}

func TestOpenOpensslBoundary(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-openssl", printScript(opensslHandshake+"payload"))
	n := testNegotiator(t, PolicyNever, nil, client)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestOpenChunkedOutput(t *testing.T) {
	testlog.Start(t)
	// Status lines arrive in separate writes with a pause before the
	// boundary marker; the poll loop must keep accumulating.
	script := "printf '%s' " + shellQuote("- Handshake was completed\n") +
		"; sleep 0.05; printf '%s' " + shellQuote("- Simple Client Mode:\n\ndata")
	client := scriptClient("fake-chunked", script)
	n := testNegotiator(t, PolicyNever, nil, client)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestOpenUntrustedNeverFails(t *testing.T) {
	testlog.Start(t)
	// The fake would leave a survivor file if it outlived the failed
	// verification; teardown must kill it before Open returns.
	survivor := filepath.Join(t.TempDir(), "survivor")
	script := printScript(gnutlsUntrusted+"secret") +
		"; sleep 0.3; : > " + survivor
	client := scriptClient("fake-gnutls", script)
	n := testNegotiator(t, PolicyNever, nil, client)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrUntrustedPeer)
	assert.Nil(t, conn)

	time.Sleep(400 * time.Millisecond)
	_, statErr := os.Stat(survivor)
	assert.True(t, os.IsNotExist(statErr), "transport client outlived the failed session")
}

func TestOpenUntrustedAlwaysWaived(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-gnutls", printScript(gnutlsUntrusted+"secret"))
	n := testNegotiator(t, PolicyAlways, nil, client)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))
}

type fixedConfirmer struct {
	answer  bool
	prompts []string
}

func (f *fixedConfirmer) Confirm(prompt string) bool {
	f.prompts = append(f.prompts, prompt)
	return f.answer
}

func TestOpenUntrustedAskConsultsConfirmer(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-gnutls", printScript(gnutlsUntrusted+"secret"))

	decline := &fixedConfirmer{answer: false}
	n := testNegotiator(t, PolicyAsk, decline, client)
	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrUntrustedPeer)
	require.Len(t, decline.prompts, 1)
	assert.Contains(t, decline.prompts[0], "example.test")

	accept := &fixedConfirmer{answer: true}
	n = testNegotiator(t, PolicyAsk, accept, client)
	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()
}

func TestOpenNonInteractiveAskDeclines(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-gnutls", printScript(gnutlsUntrusted+"secret"))
	n := testNegotiator(t, PolicyAsk, nil, client)

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrUntrustedPeer)
}

func TestOpenHostMismatchIndependentOfTrust(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-gnutls", printScript(gnutlsMismatch+"secret"))
	n := testNegotiator(t, PolicyNever, nil, client)

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrHostMismatch)
}

func TestOpenOpensslVerifyCodeUntrusted(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-openssl", printScript(opensslUntrusted+"secret"))
	n := testNegotiator(t, PolicyNever, nil, client)

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrUntrustedPeer)
}

func TestOpenProcessExitsBeforeHandshake(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-dead", printScript("Resolving 'example.test'...\nConnection refused\n"))
	n := testNegotiator(t, PolicyNever, nil, client)

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrHandshakeFailed)
}

func TestOpenExitsBeforeBoundary(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-truncated", printScript("- Handshake was completed\n"))
	n := testNegotiator(t, PolicyNever, nil, client)

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrNoDataBoundary)
}

func TestOpenHandshakeTimeout(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-slow", "sleep 30")
	n := New(Options{
		Policy:           PolicyNever,
		Clients:          []Client{client},
		HandshakeTimeout: 200 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
	})

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrHandshakeFailed)
}

func TestOpenSpawnFallbackAcrossCandidates(t *testing.T) {
	testlog.Start(t)
	broken := Client{Name: "absent", Template: []string{"bootctl-test-no-such-binary", "%h"}}
	working := scriptClient("fallback", printScript(gnutlsHandshake+"via fallback"))
	n := testNegotiator(t, PolicyNever, nil, broken, working)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "fallback", conn.ClientName())
}

func TestOpenNoClientAvailable(t *testing.T) {
	testlog.Start(t)
	broken := Client{Name: "absent", Template: []string{"bootctl-test-no-such-binary"}}
	n := testNegotiator(t, PolicyNever, nil, broken)

	_, err := n.Open(context.Background(), "index", "example.test", 443)
	require.ErrorIs(t, err, ErrNoClient)
}

func TestConnWriteReachesClientStdin(t *testing.T) {
	testlog.Start(t)
	// cat echoes stdin back after the canned negotiation text.
	script := "printf '%s' " + shellQuote(gnutlsHandshake) + "; cat"
	client := scriptClient("fake-echo", script)
	n := testNegotiator(t, PolicyNever, nil, client)

	conn, err := n.Open(context.Background(), "echo", "example.test", 443)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	sz, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping\n", string(buf[:sz]))
}

func TestConnClosedRefusesIO(t *testing.T) {
	testlog.Start(t)
	client := scriptClient("fake-gnutls", printScript(gnutlsHandshake+"x"))
	n := testNegotiator(t, PolicyNever, nil, client)

	conn, err := n.Open(context.Background(), "index", "example.test", 443)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrConnClosed)
	_, err = conn.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestParsePolicy(t *testing.T) {
	testlog.Start(t)
	for _, raw := range []string{"never", "ask", "always"} {
		p, err := ParsePolicy(raw)
		require.NoError(t, err)
		assert.Equal(t, Policy(raw), p)
	}
	_, err := ParsePolicy("sometimes")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
