// Package bootstrap makes a fixed pack dependency set available before the
// host runtime starts normal operation.
//
// Ownership boundary:
// - local-first satisfaction of the dependency set
//
// - fallback repository registration, index refresh fan-out, and install
//   retry inside a scoped private environment
//
// Transport failures are absorbed per repository; only install failures and
// the final re-check escape to the caller.
package bootstrap
