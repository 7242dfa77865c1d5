package autosig

import (
	"context"
	"errors"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/pkg/credentials"
)

// BindingService updates the access point bound to teacher accounts.
// Every update requires a token that the Auth Authenticator accepts.
type BindingService struct {
	Auth    Authenticator
	Store   credentials.CredStore
	Timeout time.Duration
}

// UpdateBinding sets the field binding of the id teacher account to value.
//
// It errors with CodeInvalidPassword if token is rejected and with CodeUserNotFound if the
// account does not exist. Nothing is modified when an error is returned.
func (self BindingService) UpdateBinding(ctx context.Context, id string, field credentials.BindingField, value string, token []byte) error {
	err := credentials.CheckId(id)
	if nil != err {
		return statusError(CodeInvalidParameter, err, "invalid id")
	}
	err = field.Check(value)
	if nil != err {
		return statusError(CodeInvalidParameter, err, "invalid %s", field)
	}
	log := observability.GetObservability(ctx).Log().With("id", id, "field", field.String())

	verdict, err := self.Auth.Authenticate(ctx, credentials.Teacher, id, token)
	switch verdict {
	case VerdictAuthenticated:
	case VerdictRejected:
		log.Info("binding update refused, invalid password")
		return statusError(CodeInvalidPassword, nil, "invalid password")
	case VerdictUserNotFound:
		return statusError(CodeUserNotFound, nil, "unknown teacher %s", id)
	default:
		log.Error("failed token authentication", "error", err)
		return statusError(CodeInternalFault, err, "failed token authentication")
	}

	err = callStoreErr(ctx, self.Timeout, func(ctx context.Context) error {
		return self.Store.UpdateBinding(ctx, credentials.Teacher, id, field, value)
	})
	switch {
	case nil == err:
		log.Info("binding updated")
		return nil
	case errors.Is(err, credentials.ErrNotFound):
		return statusError(CodeUserNotFound, err, "teacher %s removed", id)
	case errors.Is(err, credentials.ErrValidation):
		return statusError(CodeInvalidParameter, err, "invalid %s", field)
	}
	log.Error("failed binding update", "error", err)

	return statusError(CodeInternalFault, err, "failed binding update")
}

// UpdateBSSID sets the BSSID binding of the id teacher account.
func (self BindingService) UpdateBSSID(ctx context.Context, id string, bssid string, token []byte) error {
	return self.UpdateBinding(ctx, id, credentials.BSSID, bssid, token)
}

// UpdateSSID sets the SSID binding of the id teacher account.
func (self BindingService) UpdateSSID(ctx context.Context, id string, ssid string, token []byte) error {
	return self.UpdateBinding(ctx, id, credentials.SSID, ssid, token)
}
