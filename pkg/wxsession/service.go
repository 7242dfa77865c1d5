package wxsession

import (
	"context"
	"errors"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/internal/session"
	"code.autosig.org/golang/pkg/credentials"
)

// DefaultLifetime is the validity period of the sessions issued by Service.Login.
const DefaultLifetime = 6 * time.Hour

// Service issues sessions to WeChat users and answers bind status queries.
type Service struct {
	exchanger Exchanger
	store     credentials.CredStore
	timeout   time.Duration
	factory   *session.SidFactory
	sessions  *session.MemStore[session.Sid, Identity]
}

// NewService returns a Service that resolves login codes with exchanger and accounts with store.
// A zero lifetime selects DefaultLifetime, a zero timeout bounds store calls to 3 seconds.
func NewService(exchanger Exchanger, store credentials.CredStore, lifetime time.Duration, timeout time.Duration) (*Service, error) {
	if nil == exchanger {
		return nil, newError("nil exchanger")
	}
	if nil == store {
		return nil, newError("nil store")
	}
	if 0 == lifetime {
		lifetime = DefaultLifetime
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	factory, err := session.NewSidFactory(lifetime)
	if nil != err {
		return nil, wrapError(err, "failed SidFactory creation")
	}
	sessions, err := session.NewMemStore[session.Sid, Identity](factory)
	if nil != err {
		return nil, wrapError(err, "failed MemStore creation")
	}

	return &Service{
		exchanger: exchanger,
		store:     store,
		timeout:   timeout,
		factory:   factory,
		sessions:  sessions,
	}, nil
}

// Lifetime returns the validity period of the issued sessions.
func (self *Service) Lifetime() time.Duration {
	return self.factory.Lifetime()
}

// Login exchanges jscode and returns the id of a new session holding the WeChat user Identity.
func (self *Service) Login(ctx context.Context, jscode string) (session.Sid, error) {
	identity, err := self.exchanger.Code2Session(ctx, jscode)
	if nil != err {
		return session.Sid{}, err
	}
	sid := self.sessions.Save(identity)
	observability.GetObservability(ctx).Log().Debug("issued session", "identity", identity)

	return sid, nil
}

// Identify exchanges jscode for the WeChat user Identity without creating a session.
func (self *Service) Identify(ctx context.Context, jscode string) (Identity, error) {
	return self.exchanger.Code2Session(ctx, jscode)
}

// Resolve returns the Identity held by the sid session.
// The bool flag is false if sid is unknown, forged or expired.
func (self *Service) Resolve(sid session.Sid) (Identity, bool) {
	return self.sessions.Get(sid)
}

// ResolveText is Resolve for the text form of a session id.
// It errors with ErrSession if the session does not exist.
func (self *Service) ResolveText(text string) (Identity, error) {
	sid, err := session.ParseSid(text)
	if nil != err {
		return Identity{}, wrapFlagError(ErrSession, err, "invalid session id")
	}
	identity, found := self.Resolve(sid)
	if !found {
		return Identity{}, raiseError(ErrSession, "unknown or expired session")
	}

	return identity, nil
}

// Logout revokes the sid session.
// It returns false if sid is unknown, forged or expired.
func (self *Service) Logout(ctx context.Context, sid session.Sid) bool {
	revoked := self.sessions.Delete(sid)
	if revoked {
		observability.GetObservability(ctx).Log().Debug("revoked session")
	}
	return revoked
}

// LogoutText is Logout for the text form of a session id.
// It errors with ErrSession if the session does not exist.
func (self *Service) LogoutText(ctx context.Context, text string) error {
	sid, err := session.ParseSid(text)
	if nil != err {
		return wrapFlagError(ErrSession, err, "invalid session id")
	}
	if !self.Logout(ctx, sid) {
		return raiseError(ErrSession, "unknown or expired session")
	}

	return nil
}

// BindStatus returns true if a kind account is bound to identity.
func (self *Service) BindStatus(ctx context.Context, kind credentials.AccountKind, identity Identity) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, self.timeout)
	defer cancel()

	var record credentials.Record
	err := self.store.FindByOpenId(ctx, kind, identity.OpenId, &record)
	switch {
	case nil == err:
		return true, nil
	case errors.Is(err, credentials.ErrNotFound):
		return false, nil
	}

	return false, wrapError(err, "failed account lookup")
}
