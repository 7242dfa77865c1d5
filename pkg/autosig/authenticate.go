package autosig

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
)

// Verdict is the outcome of a token authentication.
type Verdict int

const (
	VerdictRejected Verdict = iota
	VerdictAuthenticated
	VerdictUserNotFound
	VerdictInternalFault
)

// String implements fmt.Stringer.
func (self Verdict) String() string {
	switch self {
	case VerdictRejected:
		return "rejected"
	case VerdictAuthenticated:
		return "authenticated"
	case VerdictUserNotFound:
		return "user_not_found"
	case VerdictInternalFault:
		return "internal_fault"
	}
	return "verdict(" + strconv.Itoa(int(self)) + ")"
}

// Authenticator verifies tokens, password digests encrypted with an account public key.
type Authenticator struct {
	Store   credentials.CredStore
	Timeout time.Duration
}

// Authenticate returns VerdictAuthenticated if token decrypts with the kind account private key
// to the digest registered for the account.
//
// Any token that fails decryption is VerdictRejected, as a token carrying a wrong digest.
// The returned error is non nil only for VerdictInternalFault.
func (self Authenticator) Authenticate(ctx context.Context, kind credentials.AccountKind, id string, token []byte) (Verdict, error) {
	obs := observability.GetObservability(ctx)
	verdict, err := self.authenticate(ctx, kind, id, token)
	obs.Metric().ObserveVerdict(verdict.String())
	obs.Log().Debug("token authentication", "kind", kind.String(), "id", id, "verdict", verdict.String())

	return verdict, err
}

func (self Authenticator) authenticate(ctx context.Context, kind credentials.AccountKind, id string, token []byte) (Verdict, error) {
	record, err := callStore(ctx, self.Timeout, func(ctx context.Context) (credentials.Record, error) {
		var record credentials.Record
		err := self.Store.LoadRecord(ctx, kind, id, &record)
		return record, err
	})
	if nil != err {
		if errors.Is(err, credentials.ErrNotFound) {
			return VerdictUserNotFound, nil
		}
		return VerdictInternalFault, wrapError(err, "failed loading %s %s", kind, id)
	}

	digest, err := keypair.Decrypt(record.PrivateKey, token)
	if nil != err {
		return VerdictRejected, nil
	}
	if 0 == len(record.ExpectedDigest) || 1 != subtle.ConstantTimeCompare(digest, record.ExpectedDigest) {
		return VerdictRejected, nil
	}

	return VerdictAuthenticated, nil
}
