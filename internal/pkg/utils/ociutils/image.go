package ociutils

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const schemeOCI = "oci://"

// ErrInvalidReference is returned for strings that do not name a bundle image.
var ErrInvalidReference = errors.New("invalid OCI reference")

// repository path, then either :tag or @sha256:digest
var regexReference = regexp.MustCompile(`^/([a-z0-9]+(?:(?:\.|_|__|-+)[a-z0-9]+)*(?:/[a-z0-9]+(?:(?:\.|_|__|-+)[a-z0-9]+)*)*)(?::([a-zA-Z0-9_][a-zA-Z0-9._-]{0,127})|@(sha256:[a-f0-9]{64}))$`)

// Reference identifies a bundle image in a registry.
type Reference struct {
	// Registry is the canonical host[:port] of the registry.
	Registry   string
	Repository string
	// Reference is either a tag or a digest, see ByDigest.
	Reference string
	ByDigest  bool
}

// Repo returns the fully qualified repository name.
func (r Reference) Repo() string {
	return r.Registry + "/" + r.Repository
}

func (r Reference) String() string {
	if r.ByDigest {
		return r.Repo() + "@" + r.Reference
	}
	return r.Repo() + ":" + r.Reference
}

// ParseReference parses "[oci://]host[:port]/repo(:tag|@sha256:digest)".
// Registry hosts are lowercased and IDNA encoded, repositories must already be lowercase.
func ParseReference(s string) (Reference, error) {
	if !strings.HasPrefix(s, schemeOCI) {
		s = schemeOCI + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}
	m := regexReference.FindStringSubmatch(u.Path)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, u.Path)
	}
	host, err := canonicalHost(u.Host)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}
	if host == "" {
		return Reference{}, fmt.Errorf("%w: missing registry host", ErrInvalidReference)
	}
	ref := Reference{Registry: host, Repository: m[1], Reference: m[2]}
	if ref.Reference == "" {
		ref.Reference, ref.ByDigest = m[3], true
	}
	return ref, nil
}

func canonicalHost(host string) (string, error) {
	return idna.ToASCII(strings.TrimSuffix(strings.ToLower(host), "."))
}
