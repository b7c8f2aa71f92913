// Package activation swaps which bundle is loaded by the application.
package activation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoActiveBundle   = errors.New("no active bundle")
	ErrNoPreviousBundle = errors.New("no previous bundle to roll back to")
	ErrBundleModified   = errors.New("active bundle was modified after activation")
)

// Service makes bundles the one that is loaded on the next application start.
// Every method is atomic from the perspective of the caller.
type Service interface {
	// InstallBundle unpacks the artifact at path according to formatHint and activates it.
	// An empty hint infers the format from the file extension.
	InstallBundle(ctx context.Context, path, formatHint string) error
	// InstallExactBundle activates path as is, without unpacking or format inference.
	InstallExactBundle(ctx context.Context, path string) error
	// DeleteBundle removes the active bundle.
	DeleteBundle(ctx context.Context) error
	// Rollback activates the bundle that was active before the current one.
	Rollback(ctx context.Context) error
	// Restart restarts the application, failures are only logged.
	Restart(ctx context.Context)
}

// Record describes an activated bundle.
type Record struct {
	// Path is what the application loads, a directory or a single file.
	Path string `json:"path"`
	// Dir is the directory owned by the activator, empty for bundles activated in place.
	Dir         string    `json:"dir,omitempty"`
	Format      string    `json:"format,omitempty"`
	Digest      string    `json:"digest"`
	InstalledAt time.Time `json:"installed_at"`
}

// Managed reports whether the activator owns the files of the bundle.
func (r *Record) Managed() bool {
	return r.Dir != ""
}

type state struct {
	Active   *Record `json:"active,omitempty"`
	Previous *Record `json:"previous,omitempty"`
}
