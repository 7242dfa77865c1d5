package autosig

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/internal/transport"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/digest"
	"code.autosig.org/golang/pkg/keypair"
	"code.autosig.org/golang/pkg/wxsession"
)

// fakeExchanger maps jscode to openid "open-<jscode>", it refuses jscode "bad".
type fakeExchanger struct{}

func (self fakeExchanger) Code2Session(_ context.Context, jscode string) (wxsession.Identity, error) {
	if "bad" == jscode {
		return wxsession.Identity{}, wxsession.ErrExchange
	}
	return wxsession.Identity{OpenId: "open-" + jscode, SessionKey: "sk"}, nil
}

type testServer struct {
	*httptest.Server
	Store   credentials.CredStore
	Metrics *observability.Metrics
}

func newTestServer(t *testing.T, store credentials.CredStore, timeout time.Duration, withSessions bool) testServer {
	srv := newTestService(t, store, timeout)
	api := API{Service: srv}
	if withSessions {
		sessions, err := wxsession.NewService(fakeExchanger{}, store, 0, timeout)
		if nil != err {
			t.Fatalf("failed wxsession.NewService, got error %v", err)
		}
		api.Sessions = sessions
	}
	metrics := observability.NewMetrics()
	mw := observability.Middleware{Logger: slog.Default(), Metrics: metrics}
	hs := httptest.NewServer(mw.Wrap(api.Handler()))
	t.Cleanup(hs.Close)

	return testServer{Server: hs, Store: store, Metrics: metrics}
}

type rawEnvelope struct {
	Code Code            `json:"code"`
	Body json.RawMessage `json:"body"`
}

// get sends a GET request for route and returns the decoded JSON envelope.
func (self testServer) get(t *testing.T, route string, params url.Values) rawEnvelope {
	resp, err := self.Client().Get(self.URL + route + "?" + params.Encode())
	if nil != err {
		t.Fatalf("failed GET %s, got error %v", route, err)
	}
	return decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) rawEnvelope {
	defer resp.Body.Close()
	if http.StatusOK != resp.StatusCode {
		t.Fatalf("unexpected http status %d", resp.StatusCode)
	}
	if transport.ContentTypeJSON != resp.Header.Get("Content-Type") {
		t.Fatalf("unexpected Content-Type %q", resp.Header.Get("Content-Type"))
	}
	var env rawEnvelope
	err := json.NewDecoder(resp.Body).Decode(&env)
	if nil != err {
		t.Fatalf("failed decoding envelope, got error %v", err)
	}
	return env
}

func registerParams(id string, password string) url.Values {
	params := url.Values{}
	params.Set("id", id)
	params.Set("name", "Teacher "+id)
	params.Set("bssid", testBSSID)
	params.Set("token", string(digest.Digest([]byte(password))))
	return params
}

func (self testServer) token(t *testing.T, id string, password string) string {
	params := url.Values{"id": {id}, "type": {"0"}}
	env := self.get(t, RouteQueryPublicKey, params)
	if CodeOK != env.Code {
		t.Fatalf("failed query_public_key, got code %s", env.Code)
	}
	var body PublicKeyBody
	err := json.Unmarshal(env.Body, &body)
	if nil != err {
		t.Fatalf("failed decoding public key body, got error %v", err)
	}
	ciphertext, err := keypair.Encrypt(keypair.PublicPEM(body.PublicKey), digest.Digest([]byte(password)))
	if nil != err {
		t.Fatalf("failed Encrypt, got error %v", err)
	}
	return keypair.EncodeToken(ciphertext)
}

func TestHTTPRegisterAndAlter(t *testing.T) {
	ts := newTestServer(t, credentials.NewMemCredStore(), 0, false)

	env := ts.get(t, RouteRegisterTeacher, registerParams("T001", "pw1"))
	if CodeOK != env.Code || 0 != len(env.Body) {
		t.Fatalf("failed register_teacher, got code %s body %s", env.Code, env.Body)
	}

	good := ts.token(t, "T001", "pw1")
	bad := ts.token(t, "T001", "pw2")
	testcases := []struct {
		name   string
		route  string
		params url.Values
		code   Code
	}{
		{
			name:   "duplicate registration",
			route:  RouteRegisterTeacher,
			params: registerParams("T001", "pw2"),
			code:   CodeUserExisting,
		},
		{
			name:   "alter bssid",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T001"}, "bssid": {"aa:bb:cc:dd:ee:ff"}, "token": {good}},
			code:   CodeOK,
		},
		{
			name:   "alter ssid",
			route:  RouteAlterSSID,
			params: url.Values{"id": {"T001"}, "ssid": {"classroom-12"}, "token": {good}},
			code:   CodeOK,
		},
		{
			name:   "wrong password",
			route:  RouteAlterSSID,
			params: url.Values{"id": {"T001"}, "ssid": {"rogue"}, "token": {bad}},
			code:   CodeInvalidPassword,
		},
		{
			name:   "undecodable token",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T001"}, "bssid": {"rogue"}, "token": {"%%not base64%%"}},
			code:   CodeInvalidPassword,
		},
		{
			name:   "unknown teacher",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T404"}, "bssid": {testBSSID}, "token": {good}},
			code:   CodeUserNotFound,
		},
		{
			name:   "missing token",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T001"}, "bssid": {testBSSID}},
			code:   CodeMissingParameter,
		},
		{
			name:   "empty token",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T001"}, "bssid": {testBSSID}, "token": {""}},
			code:   CodeInvalidPassword,
		},
		{
			name:   "blank token",
			route:  RouteAlterSSID,
			params: url.Values{"id": {"T001"}, "ssid": {"rogue"}, "token": {" "}},
			code:   CodeInvalidPassword,
		},
		{
			name:   "unknown teacher empty token",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T404"}, "bssid": {testBSSID}, "token": {""}},
			code:   CodeUserNotFound,
		},
		{
			name:   "unknown teacher blank token",
			route:  RouteAlterBSSID,
			params: url.Values{"id": {"T404"}, "bssid": {testBSSID}, "token": {" "}},
			code:   CodeUserNotFound,
		},
		{
			name:   "empty name",
			route:  RouteRegisterTeacher,
			params: url.Values{"id": {"T003"}, "name": {""}, "bssid": {testBSSID}, "token": {"d"}},
			code:   CodeMissingParameter,
		},
		{
			name:   "missing name",
			route:  RouteRegisterTeacher,
			params: url.Values{"id": {"T003"}, "bssid": {testBSSID}, "token": {"d"}},
			code:   CodeMissingParameter,
		},
		{
			name:   "empty id",
			route:  RouteQueryPublicKey,
			params: url.Values{"id": {""}, "type": {"0"}},
			code:   CodeInvalidParameter,
		},
		{
			name:   "invalid type",
			route:  RouteQueryPublicKey,
			params: url.Values{"id": {"T001"}, "type": {"teachers"}},
			code:   CodeInvalidParameter,
		},
		{
			name:   "unknown public key",
			route:  RouteQueryPublicKey,
			params: url.Values{"id": {"T001"}, "type": {"1"}},
			code:   CodeUserNotFound,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			env := ts.get(t, tc.route, tc.params)
			if tc.code != env.Code {
				t.Errorf("expected code %s, got %s", tc.code, env.Code)
			}
			if CodeOK != env.Code && 0 != len(env.Body) {
				t.Errorf("unexpected error body %s", env.Body)
			}
		})
	}

	var record credentials.Record
	err := ts.Store.LoadRecord(t.Context(), credentials.Teacher, "T001", &record)
	if nil != err {
		t.Fatalf("failed LoadRecord, got error %v", err)
	}
	if "aa:bb:cc:dd:ee:ff" != record.BindingBSSID || "classroom-12" != record.BindingSSID {
		t.Errorf("unexpected bindings %q %q", record.BindingBSSID, record.BindingSSID)
	}
}

func TestHTTPPostForm(t *testing.T) {
	ts := newTestServer(t, credentials.NewMemCredStore(), 0, false)

	resp, err := ts.Client().PostForm(ts.URL+RouteRegisterTeacher, registerParams("T001", "pw1"))
	if nil != err {
		t.Fatalf("failed POST, got error %v", err)
	}
	env := decodeEnvelope(t, resp)
	if CodeOK != env.Code {
		t.Errorf("failed register_teacher, got code %s", env.Code)
	}
}

func TestHTTPCBOR(t *testing.T) {
	ts := newTestServer(t, credentials.NewMemCredStore(), 0, false)
	ts.get(t, RouteRegisterTeacher, registerParams("T001", "pw1"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+RouteQueryPublicKey+"?id=T001&type=0", nil)
	if nil != err {
		t.Fatalf("failed NewRequest, got error %v", err)
	}
	req.Header.Set("Accept", transport.ContentTypeCBOR)
	resp, err := ts.Client().Do(req)
	if nil != err {
		t.Fatalf("failed GET, got error %v", err)
	}
	defer resp.Body.Close()
	if transport.ContentTypeCBOR != resp.Header.Get("Content-Type") {
		t.Fatalf("unexpected Content-Type %q", resp.Header.Get("Content-Type"))
	}
	srzenv, err := io.ReadAll(resp.Body)
	if nil != err {
		t.Fatalf("failed reading body, got error %v", err)
	}

	var env response[PublicKeyBody]
	err = transport.CBORSerializer{}.Unmarshal(srzenv, &env)
	if nil != err {
		t.Fatalf("failed cbor Unmarshal, got error %v", err)
	}
	if CodeOK != env.Code || nil == env.Body {
		t.Fatalf("unexpected envelope %+v", env)
	}
	err = keypair.PublicPEM(env.Body.PublicKey).Check()
	if nil != err {
		t.Errorf("invalid public key, got error %v", err)
	}
}

func TestHTTPInternalFault(t *testing.T) {
	store := stalledStore{MemCredStore: credentials.NewMemCredStore(), release: make(chan struct{})}
	t.Cleanup(func() { close(store.release) })
	ts := newTestServer(t, store, 20*time.Millisecond, false)

	env := ts.get(t, RouteQueryPublicKey, url.Values{"id": {"T001"}, "type": {"0"}})
	if CodeInternalFault != env.Code {
		t.Fatalf("expected InternalFault, got code %s", env.Code)
	}
	var body FaultBody
	err := json.Unmarshal(env.Body, &body)
	if nil != err {
		t.Fatalf("failed decoding fault body, got error %v", err)
	}
	if "internal fault" != body.Msg {
		t.Errorf("unexpected fault msg %q", body.Msg)
	}
	if strings.Contains(string(env.Body), "timed out") {
		t.Error("fault body leaks the diagnostic")
	}
}

func TestHTTPWxSessions(t *testing.T) {
	store := credentials.NewMemCredStore()
	ts := newTestServer(t, store, 0, true)
	srv := newTestService(t, store, 0)
	err := srv.Registrar.EnrollStudent(t.Context(), StudentRequest{
		Id:             "S001",
		DisplayName:    "Student",
		WxOpenId:       "open-c1",
		ExpectedDigest: []byte("d"),
	})
	if nil != err {
		t.Fatalf("failed EnrollStudent, got error %v", err)
	}

	env := ts.get(t, RouteWxLogin, url.Values{"jscode": {"c1"}})
	if CodeOK != env.Code {
		t.Fatalf("failed wx_login, got code %s", env.Code)
	}
	var login LoginBody
	err = json.Unmarshal(env.Body, &login)
	if nil != err {
		t.Fatalf("failed decoding login body, got error %v", err)
	}
	if "" == login.SessionId || int64(wxsession.DefaultLifetime/time.Second) != login.ExpiresIn {
		t.Errorf("unexpected login body %+v", login)
	}

	testcases := []struct {
		name   string
		params url.Values
		code   Code
		status int
	}{
		{name: "bound session", params: url.Values{"session_id": {login.SessionId}}, code: CodeOK, status: 1},
		{name: "bound jscode", params: url.Values{"jscode": {"c1"}}, code: CodeOK, status: 1},
		{name: "unbound jscode", params: url.Values{"jscode": {"c2"}}, code: CodeOK, status: 0},
		{name: "teacher type", params: url.Values{"jscode": {"c1"}, "type": {"0"}}, code: CodeOK, status: 0},
		{name: "invalid session", params: url.Values{"session_id": {"garbage"}}, code: CodeInvalidParameter},
		{name: "refused jscode", params: url.Values{"jscode": {"bad"}}, code: CodeInternalFault},
		{name: "no identity", params: url.Values{"type": {"1"}}, code: CodeMissingParameter},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			env := ts.get(t, RouteQueryBindStatus, tc.params)
			if tc.code != env.Code {
				t.Fatalf("expected code %s, got %s", tc.code, env.Code)
			}
			if CodeOK != env.Code {
				return
			}
			var body BindStatusBody
			err := json.Unmarshal(env.Body, &body)
			if nil != err {
				t.Fatalf("failed decoding status body, got error %v", err)
			}
			if tc.status != body.Status {
				t.Errorf("expected status %d, got %d", tc.status, body.Status)
			}
		})
	}

	env = ts.get(t, RouteWxLogin, url.Values{"jscode": {"bad"}})
	if CodeInternalFault != env.Code {
		t.Errorf("expected InternalFault for refused login, got %s", env.Code)
	}

	env = ts.get(t, RouteWxLogout, url.Values{"session_id": {login.SessionId}})
	if CodeOK != env.Code {
		t.Fatalf("failed wx_logout, got code %s", env.Code)
	}
	env = ts.get(t, RouteQueryBindStatus, url.Values{"session_id": {login.SessionId}})
	if CodeInvalidParameter != env.Code {
		t.Errorf("expected InvalidParameter for revoked session, got %s", env.Code)
	}
	env = ts.get(t, RouteWxLogout, url.Values{"session_id": {login.SessionId}})
	if CodeInvalidParameter != env.Code {
		t.Errorf("expected InvalidParameter for second wx_logout, got %s", env.Code)
	}
	env = ts.get(t, RouteWxLogout, nil)
	if CodeMissingParameter != env.Code {
		t.Errorf("expected MissingParameter for wx_logout, got %s", env.Code)
	}
}

func TestHTTPWithoutSessions(t *testing.T) {
	ts := newTestServer(t, credentials.NewMemCredStore(), 0, false)
	resp, err := ts.Client().Get(ts.URL + RouteWxLogin + "?jscode=c1")
	if nil != err {
		t.Fatalf("failed GET, got error %v", err)
	}
	resp.Body.Close()
	if http.StatusNotFound != resp.StatusCode {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHTTPRequestMetric(t *testing.T) {
	ts := newTestServer(t, credentials.NewMemCredStore(), 0, false)

	env := ts.get(t, RouteHealthz, nil)
	if CodeOK != env.Code {
		t.Errorf("failed healthz, got code %s", env.Code)
	}
	ts.get(t, RouteQueryPublicKey, url.Values{"id": {"T404"}, "type": {"0"}})
	ts.get(t, RouteQueryPublicKey, url.Values{"id": {"T405"}, "type": {"0"}})

	if got := counterValue(t, ts.Metrics, "autosig_requests_total", RouteQueryPublicKey); 2 != got {
		t.Errorf("expected 2 query_public_key requests, got %v", got)
	}
	if got := counterValue(t, ts.Metrics, "autosig_requests_total", RouteHealthz); 1 != got {
		t.Errorf("expected 1 healthz request, got %v", got)
	}
}
