// Package negotiate establishes secure byte-stream channels through an
// external transport client subprocess (gnutls-cli, openssl s_client).
//
// Ownership boundary:
// - transport client registry and command templating
//
// - per-session handshake detection, trust/hostname verification, and
//   informational-text stripping
//
// The client exposes its wire state only as mixed human/machine text on
// stdout, so negotiation is marker scanning over an accumulating buffer,
// not a structured API.
package negotiate
