package ociutils

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// ChainCredentials returns an auth.CredentialFunc that asks every source in order
// and uses the first non-empty credential. Sources that fail are skipped.
// Hosts without any credential are accessed anonymously.
func ChainCredentials(sources ...auth.CredentialFunc) auth.CredentialFunc {
	return func(ctx context.Context, hostport string) (auth.Credential, error) {
		for i, source := range sources {
			cred, err := source(ctx, hostport)
			if err != nil {
				log.WithError(err).WithField("source", i).Debugf("failed to load credentials for %s", hostport)
				continue
			}
			if cred != auth.EmptyCredential {
				log.Debugf("found credential for %s", hostport)
				return cred, nil
			}
		}
		return auth.EmptyCredential, nil
	}
}

// DockerConfigCredentials reads registry credentials from a docker config.json,
// including configured credential helpers.
func DockerConfigCredentials(path string) (auth.CredentialFunc, error) {
	store, err := credentials.NewStore(path, credentials.StoreOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load docker config %s: %w", path, err)
	}
	return credentials.Credential(store), nil
}
