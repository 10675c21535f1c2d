// Package config loads the machine configuration from an INI file into an immutable Snapshot.
//
// Invalid or out of range options are configuration errors: each one is logged, recorded in
// Store.Issues and replaced by its default so the machine still starts in a safe state.
// Only user tunables are written back to the file, see Store.SetTunable.
package config
