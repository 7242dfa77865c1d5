package autosig

import (
	"context"
	"errors"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
)

// PublicKeyService gives access to account public keys.
// It does not require authentication, clients need the public key to build tokens.
type PublicKeyService struct {
	Store   credentials.CredStore
	Timeout time.Duration
}

// QueryPublicKey returns the public key of the kind account with id identifier.
func (self PublicKeyService) QueryPublicKey(ctx context.Context, kind credentials.AccountKind, id string) (keypair.PublicPEM, error) {
	err := kind.Check()
	if nil != err {
		return "", statusError(CodeInvalidParameter, err, "invalid account type")
	}
	err = credentials.CheckId(id)
	if nil != err {
		return "", statusError(CodeInvalidParameter, err, "invalid id")
	}

	pub, err := callStore(ctx, self.Timeout, func(ctx context.Context) (keypair.PublicPEM, error) {
		return self.Store.LoadPublicKey(ctx, kind, id)
	})
	switch {
	case nil == err:
		return pub, nil
	case errors.Is(err, credentials.ErrNotFound):
		return "", statusError(CodeUserNotFound, nil, "unknown %s %s", kind, id)
	}
	observability.GetObservability(ctx).Log().Error("failed public key lookup", "kind", kind.String(), "id", id, "error", err)

	return "", statusError(CodeInternalFault, err, "failed public key lookup")
}
