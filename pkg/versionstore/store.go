// Package versionstore persists the installed bundle version and the metadata attached to it.
package versionstore

import "context"

// Store persists the current version in its string form and an opaque metadata text.
// Implementations do not offer transactions, every call is an independent operation.
type Store interface {
	// CurrentVersion returns the stored version, "" if none was ever stored.
	CurrentVersion(ctx context.Context) (string, error)
	SetCurrentVersion(ctx context.Context, v string) error
	// Metadata returns the stored metadata text, ok is false if the stored value is null.
	Metadata(ctx context.Context) (value string, ok bool, err error)
	SetMetadata(ctx context.Context, v string) error
}
