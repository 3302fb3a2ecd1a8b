package negotiate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoClient        = errors.New("negotiate: no transport client could be spawned")
	ErrHandshakeFailed = errors.New("negotiate: handshake not completed")
	ErrNoDataBoundary  = errors.New("negotiate: end of informational text not found")
	ErrUntrustedPeer   = errors.New("negotiate: peer certificate not trusted")
	ErrHostMismatch    = errors.New("negotiate: certificate hostname mismatch")
	ErrInvalidPolicy   = errors.New("negotiate: invalid trust policy")
)

// Policy controls how trust and hostname verification failures are handled.
type Policy string

const (
	PolicyNever  Policy = "never"
	PolicyAsk    Policy = "ask"
	PolicyAlways Policy = "always"
)

// ParsePolicy validates a configured policy value.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case PolicyNever, PolicyAsk, PolicyAlways:
		return Policy(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, raw)
	}
}

// Confirmer resolves an ask-policy verification prompt.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Decline is the non-interactive confirmer: every prompt is refused.
// Hosts without a terminal must opt into PolicyAlways explicitly rather
// than depending on prompt behavior.
type Decline struct{}

func (Decline) Confirm(string) bool { return false }

// awaiting is the internal retry signal for the handshake poll loop.
var errAwaiting = errors.New("negotiate: awaiting transport client output")

// Options configures a Negotiator.
type Options struct {
	TrustFile        string
	Policy           Policy
	Confirm          Confirmer
	Clients          []Client
	HandshakeTimeout time.Duration
	PollInterval     time.Duration
}

// Negotiator drives transport client subprocesses through handshake,
// verification, and boundary stripping.
type Negotiator struct {
	opts Options
}

func New(opts Options) *Negotiator {
	if opts.Policy == "" {
		opts.Policy = PolicyAsk
	}
	if opts.Confirm == nil {
		opts.Confirm = Decline{}
	}
	if len(opts.Clients) == 0 {
		if reg := Registered(); len(reg) > 0 {
			opts.Clients = reg
		} else {
			opts.Clients = DefaultClients()
		}
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Negotiator{opts: opts}
}

// Open negotiates a secure channel to host:port. The returned Conn serves
// only post-boundary application data; on error no subprocess is left
// running. name is a caller-chosen label used for log correlation.
func (n *Negotiator) Open(ctx context.Context, name string, host string, port int) (*Conn, error) {
	id := uuid.NewString()
	logger := log.With().
		Str("session", id).
		Str("conn", name).
		Str("host", host).
		Int("port", port).
		Logger()

	cmd, client, out, stdin, err := n.spawn(ctx, host, port)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("client", client.Name).Msg("transport client spawned")

	fail := func(cause error) error {
		_ = stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		out.drop()
		logger.Debug().Err(cause).Msg("negotiation failed")
		return cause
	}

	boundary, err := n.awaitBoundary(ctx, out)
	if err != nil {
		return nil, fail(err)
	}

	info, _ := out.snapshot()
	info = info[:boundary]

	if err := n.verify(info, host); err != nil {
		return nil, fail(err)
	}

	out.discard(boundary)
	logger.Debug().Str("client", client.Name).Int("boundary", boundary).Msg("channel ready")

	return &Conn{
		id:     id,
		client: client.Name,
		cmd:    cmd,
		stdin:  stdin,
		out:    out,
	}, nil
}

// spawn tries each candidate in priority order until one starts.
func (n *Negotiator) spawn(ctx context.Context, host string, port int) (*exec.Cmd, Client, *stream, io.WriteCloser, error) {
	portStr := strconv.Itoa(port)
	var lastErr error
	for _, client := range n.opts.Clients {
		if err := client.Validate(); err != nil {
			lastErr = err
			continue
		}
		argv := client.Argv(n.opts.TrustFile, host, portStr)
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			lastErr = err
			continue
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			lastErr = err
			continue
		}
		if err := cmd.Start(); err != nil {
			lastErr = err
			continue
		}

		out := newStream()
		go func() {
			_, copyErr := io.Copy(out, stdout)
			out.finish(copyErr)
		}()
		return cmd, client, out, stdin, nil
	}
	if lastErr != nil {
		return nil, Client{}, nil, nil, fmt.Errorf("%w: %v", ErrNoClient, lastErr)
	}
	return nil, Client{}, nil, nil, ErrNoClient
}

// awaitBoundary polls the output buffer until both the handshake-success
// marker and the end-of-informational-text marker have appeared, returning
// the offset where application data begins.
func (n *Negotiator) awaitBoundary(ctx context.Context, out *stream) (int, error) {
	op := func() (int, error) {
		data, done := out.snapshot()
		if !markerHandshakeOK.Match(data) {
			if done {
				return 0, backoff.Permanent(ErrHandshakeFailed)
			}
			return 0, errAwaiting
		}
		loc := markerEndOfInfo.FindIndex(data)
		if loc == nil {
			if done {
				return 0, backoff.Permanent(ErrNoDataBoundary)
			}
			return 0, errAwaiting
		}
		return loc[1], nil
	}

	boundary, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(n.opts.PollInterval)),
		backoff.WithMaxElapsedTime(n.opts.HandshakeTimeout),
	)
	if err != nil {
		if errors.Is(err, errAwaiting) {
			return 0, fmt.Errorf("%w: timed out after %s", ErrHandshakeFailed, n.opts.HandshakeTimeout)
		}
		return 0, err
	}
	return boundary, nil
}

// verify scans the informational text for trust and hostname markers.
// The two checks are independent; either can fail the session on its own.
func (n *Negotiator) verify(info []byte, host string) error {
	if markerUntrusted.Match(info) && !n.waived(
		fmt.Sprintf("The certificate presented by %q is not trusted. Connect anyway?", host)) {
		return ErrUntrustedPeer
	}
	if markerHostMismatch.Match(info) && !n.waived(
		fmt.Sprintf("Host name %q does not match the certificate. Connect anyway?", host)) {
		return ErrHostMismatch
	}
	return nil
}

func (n *Negotiator) waived(prompt string) bool {
	switch n.opts.Policy {
	case PolicyAlways:
		return true
	case PolicyAsk:
		return n.opts.Confirm.Confirm(prompt)
	default:
		return false
	}
}
