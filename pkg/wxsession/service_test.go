package wxsession

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/credentials/credtest"
)

// fakeExchanger maps jscode to openid "open-<jscode>".
type fakeExchanger struct{}

func (self fakeExchanger) Code2Session(_ context.Context, jscode string) (Identity, error) {
	if "bad" == jscode {
		return Identity{}, raiseError(ErrExchange, "refused")
	}
	return Identity{OpenId: "open-" + jscode, SessionKey: "sk"}, nil
}

func newTestService(t *testing.T, lifetime time.Duration) *Service {
	store := credentials.NewMemCredStore()
	student := credtest.NewRecord(credentials.Student, "S001")
	student.WxOpenId = "open-c1"
	err := store.InsertRecord(t.Context(), &student)
	if nil != err {
		t.Fatalf("failed InsertRecord, got error %v", err)
	}
	srv, err := NewService(fakeExchanger{}, store, lifetime, 0)
	if nil != err {
		t.Fatalf("failed NewService, got error %v", err)
	}
	return srv
}

func TestLoginResolve(t *testing.T) {
	srv := newTestService(t, 0)
	if DefaultLifetime != srv.Lifetime() {
		t.Errorf("unexpected Lifetime %v", srv.Lifetime())
	}

	sid, err := srv.Login(t.Context(), "c1")
	if nil != err {
		t.Fatalf("failed Login, got error %v", err)
	}
	identity, found := srv.Resolve(sid)
	if !found {
		t.Fatal("session not found")
	}
	if "open-c1" != identity.OpenId {
		t.Errorf("unexpected openid %s", identity.OpenId)
	}

	identity, err = srv.ResolveText(sid.String())
	if nil != err {
		t.Fatalf("failed ResolveText, got error %v", err)
	}
	if "open-c1" != identity.OpenId {
		t.Errorf("unexpected openid %s", identity.OpenId)
	}

	_, err = srv.ResolveText("garbage")
	if !errors.Is(err, ErrSession) {
		t.Errorf("expected ErrSession, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	srv := newTestService(t, 0)
	sid, err := srv.Login(t.Context(), "c1")
	if nil != err {
		t.Fatalf("failed Login, got error %v", err)
	}
	kept, err := srv.Login(t.Context(), "c2")
	if nil != err {
		t.Fatalf("failed Login, got error %v", err)
	}

	err = srv.LogoutText(t.Context(), sid.String())
	if nil != err {
		t.Fatalf("failed LogoutText, got error %v", err)
	}
	if _, found := srv.Resolve(sid); found {
		t.Error("session still valid after Logout")
	}
	if srv.Logout(t.Context(), sid) {
		t.Error("Logout revoked a session twice")
	}
	err = srv.LogoutText(t.Context(), sid.String())
	if !errors.Is(err, ErrSession) {
		t.Errorf("expected ErrSession, got %v", err)
	}
	err = srv.LogoutText(t.Context(), "garbage")
	if !errors.Is(err, ErrSession) {
		t.Errorf("expected ErrSession, got %v", err)
	}
	if _, found := srv.Resolve(kept); !found {
		t.Error("Logout revoked another session")
	}
}

func TestLoginRefused(t *testing.T) {
	srv := newTestService(t, 0)
	_, err := srv.Login(t.Context(), "bad")
	if !errors.Is(err, ErrExchange) {
		t.Errorf("expected ErrExchange, got %v", err)
	}
}

func TestForeignSession(t *testing.T) {
	srv := newTestService(t, 0)
	other := newTestService(t, 0)
	sid, err := other.Login(t.Context(), "c1")
	if nil != err {
		t.Fatalf("failed Login, got error %v", err)
	}
	_, found := srv.Resolve(sid)
	if found {
		t.Error("session issued by another Service was accepted")
	}
}

func TestSessionExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		lifetime := 6 * time.Hour
		srv := newTestService(t, lifetime)
		sid, err := srv.Login(t.Context(), "c1")
		if nil != err {
			t.Fatalf("failed Login, got error %v", err)
		}

		time.Sleep(lifetime - time.Minute)
		_, found := srv.Resolve(sid)
		if !found {
			t.Error("session expired early")
		}

		time.Sleep(2 * time.Minute)
		_, found = srv.Resolve(sid)
		if found {
			t.Error("session still valid after lifetime")
		}
		_, err = srv.ResolveText(sid.String())
		if !errors.Is(err, ErrSession) {
			t.Errorf("expected ErrSession, got %v", err)
		}
	})
}

func TestBindStatus(t *testing.T) {
	srv := newTestService(t, 0)

	testcases := []struct {
		kind   credentials.AccountKind
		openId string
		expect bool
	}{
		{credentials.Student, "open-c1", true},
		{credentials.Student, "open-c2", false},
		{credentials.Teacher, "open-c1", false},
	}
	for pos, tc := range testcases {
		bound, err := srv.BindStatus(t.Context(), tc.kind, Identity{OpenId: tc.openId})
		if nil != err {
			t.Fatalf("#%d: failed BindStatus, got error %v", pos, err)
		}
		if tc.expect != bound {
			t.Errorf("#%d: BindStatus = %v, want %v", pos, bound, tc.expect)
		}
	}
}
