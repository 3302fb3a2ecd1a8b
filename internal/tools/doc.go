// Package tools provides reusable host-execution helpers shared by bootctl modules.
//
// Ownership boundary:
// - one-shot command execution helpers
//
// - transport client availability probes
package tools
