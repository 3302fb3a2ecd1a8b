package negotiate

import "regexp"

// Markers recognized in transport client stdout. gnutls-cli and openssl
// interleave human-readable status lines with the application byte stream;
// these patterns locate the handshake outcome and the point where status
// text ends and data begins.
var (
	markerHandshakeOK = regexp.MustCompile(
		`- Handshake was completed|SSL handshake has read `)

	markerEndOfInfo = regexp.MustCompile(
		`(?m)^\s*Verify return code: .+\n---\n|^- Simple Client Mode:\n\n?`)

	markerUntrusted = regexp.MustCompile(
		`- Peer's certificate is NOT trusted|Verify return code: ([^0 ]|.[^ ])`)

	markerHostMismatch = regexp.MustCompile(
		`# The hostname in the certificate does NOT match`)
)
