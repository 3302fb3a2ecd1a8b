// Package registry owns the pack index state touched during a bootstrap run.
//
// Ownership boundary:
// - source repository list, local and remote pack indexes, install root
//
// - scoped substitution of that state with private per-host-version
//   equivalents, restored on every exit path
//
// The environment is the single shared mutable resource of a bootstrap run;
// scoping replaces locking because runs never overlap within one process.
package registry
