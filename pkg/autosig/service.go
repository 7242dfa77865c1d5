// Package autosig implements the autosig account services.
//
// Accounts are registered with the digest of their password and receive a server
// generated RSA keypair. Later, binding mutations must present a token, the password
// digest encrypted with the account public key, that the Authenticator decrypts and
// compares with the registered digest.
//
// The package also provides the HTTP boundary exposing the services and a matching Client.
package autosig

import (
	"time"

	"code.autosig.org/golang/pkg/credentials"
)

// Options configures the autosig services.
type Options struct {
	// KeyBits is the RSA modulus size of the generated keypairs, keypair.DefaultBits if 0.
	KeyBits int

	// Timeout bounds each credential store call, DefaultTimeout if 0.
	Timeout time.Duration
}

// Service groups the autosig services sharing a CredStore.
type Service struct {
	Registrar  Registrar
	Binding    BindingService
	PublicKeys PublicKeyService
}

// NewService returns a Service using store. It errors if store is nil.
func NewService(store credentials.CredStore, opts Options) (*Service, error) {
	if nil == store {
		return nil, newError("nil store")
	}
	auth := Authenticator{Store: store, Timeout: opts.Timeout}

	return &Service{
		Registrar:  Registrar{Store: store, KeyBits: opts.KeyBits, Timeout: opts.Timeout},
		Binding:    BindingService{Auth: auth, Store: store, Timeout: opts.Timeout},
		PublicKeys: PublicKeyService{Store: store, Timeout: opts.Timeout},
	}, nil
}
