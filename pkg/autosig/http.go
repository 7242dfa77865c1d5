package autosig

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/internal/transport"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
	"code.autosig.org/golang/pkg/wxsession"
)

// Route paths served by API.
const (
	RouteRegisterTeacher = "/register_teacher"
	RouteQueryPublicKey  = "/query_public_key"
	RouteAlterBSSID      = "/alter_bssid"
	RouteAlterSSID       = "/alter_ssid"
	RouteWxLogin         = "/wx_login"
	RouteWxLogout        = "/wx_logout"
	RouteQueryBindStatus = "/query_bind_status"
	RouteHealthz         = "/healthz"
)

// Envelope is the body of every API response.
// The HTTP status is always 200, Code tells if the request succeeded.
type Envelope struct {
	Code Code `json:"code"`
	Body any  `json:"body,omitempty"`
}

// PublicKeyBody is the body of a successful query_public_key response.
type PublicKeyBody struct {
	PublicKey string `json:"public_key"`
}

// LoginBody is the body of a successful wx_login response.
type LoginBody struct {
	SessionId string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// BindStatusBody is the body of a successful query_bind_status response.
// Status is 1 if an account is bound to the caller WeChat identity, 0 otherwise.
type BindStatusBody struct {
	Status int `json:"status"`
}

// FaultBody is the body of CodeInternalFault responses.
type FaultBody struct {
	Msg string `json:"msg"`
}

// HealthBody is the body of healthz responses.
type HealthBody struct {
	Status string `json:"status"`
}

// API exposes a Service over HTTP.
//
// Requests carry their parameters in the URL query or in a urlencoded form body.
// Responses are JSON Envelope, or CBOR Envelope when the request Accept header asks for application/cbor.
type API struct {
	Service *Service

	// Sessions enables the wx_login, wx_logout & query_bind_status routes when not nil.
	Sessions *wxsession.Service
}

// Register adds the API routes to mux.
func (self *API) Register(mux *http.ServeMux) {
	mux.Handle(RouteRegisterTeacher, endpoint{route: RouteRegisterTeacher, serve: self.registerTeacher})
	mux.Handle(RouteQueryPublicKey, endpoint{route: RouteQueryPublicKey, serve: self.queryPublicKey})
	mux.Handle(RouteAlterBSSID, endpoint{route: RouteAlterBSSID, serve: self.alterBinding(credentials.BSSID)})
	mux.Handle(RouteAlterSSID, endpoint{route: RouteAlterSSID, serve: self.alterBinding(credentials.SSID)})
	mux.Handle(RouteHealthz, endpoint{route: RouteHealthz, serve: healthz})
	if nil != self.Sessions {
		mux.Handle(RouteWxLogin, endpoint{route: RouteWxLogin, serve: self.wxLogin})
		mux.Handle(RouteWxLogout, endpoint{route: RouteWxLogout, serve: self.wxLogout})
		mux.Handle(RouteQueryBindStatus, endpoint{route: RouteQueryBindStatus, serve: self.queryBindStatus})
	}
}

// Handler returns an http.Handler serving the API routes.
func (self *API) Handler() http.Handler {
	mux := http.NewServeMux()
	self.Register(mux)
	return mux
}

func (self *API) registerTeacher(r *http.Request, params url.Values) (any, error) {
	err := required(params, "id", "name", "token", "bssid")
	if nil != err {
		return nil, err
	}
	req := RegisterRequest{
		Id:             params.Get("id"),
		DisplayName:    params.Get("name"),
		InitialBSSID:   params.Get("bssid"),
		ExpectedDigest: []byte(params.Get("token")),
	}

	return nil, self.Service.Registrar.Register(r.Context(), req)
}

func (self *API) queryPublicKey(r *http.Request, params url.Values) (any, error) {
	err := required(params, "id", "type")
	if nil != err {
		return nil, err
	}
	kind, err := credentials.ParseAccountKind(params.Get("type"))
	if nil != err {
		return nil, statusError(CodeInvalidParameter, err, "invalid type")
	}
	pub, err := self.Service.PublicKeys.QueryPublicKey(r.Context(), kind, params.Get("id"))
	if nil != err {
		return nil, err
	}

	return PublicKeyBody{PublicKey: string(pub)}, nil
}

func (self *API) alterBinding(field credentials.BindingField) serveFunc {
	return func(r *http.Request, params url.Values) (any, error) {
		err := required(params, "id", field.Column(), "token")
		if nil != err {
			return nil, err
		}
		// an empty or undecodable token is handled as a wrong password
		ciphertext, _ := keypair.DecodeToken(params.Get("token"))

		return nil, self.Service.Binding.UpdateBinding(
			r.Context(),
			params.Get("id"),
			field,
			params.Get(field.Column()),
			ciphertext,
		)
	}
}

func (self *API) wxLogin(r *http.Request, params url.Values) (any, error) {
	err := required(params, "jscode")
	if nil != err {
		return nil, err
	}
	sid, err := self.Sessions.Login(r.Context(), params.Get("jscode"))
	if nil != err {
		return nil, statusError(CodeInternalFault, err, "failed login code exchange")
	}

	return LoginBody{SessionId: sid.String(), ExpiresIn: int64(self.Sessions.Lifetime() / time.Second)}, nil
}

func (self *API) wxLogout(r *http.Request, params url.Values) (any, error) {
	err := required(params, "session_id")
	if nil != err {
		return nil, err
	}
	err = self.Sessions.LogoutText(r.Context(), params.Get("session_id"))
	if nil != err {
		return nil, statusError(CodeInvalidParameter, err, "invalid session")
	}

	return nil, nil
}

func (self *API) queryBindStatus(r *http.Request, params url.Values) (any, error) {
	kind := credentials.Student
	if params.Has("type") {
		var err error
		kind, err = credentials.ParseAccountKind(params.Get("type"))
		if nil != err {
			return nil, statusError(CodeInvalidParameter, err, "invalid type")
		}
	}

	var identity wxsession.Identity
	var err error
	switch {
	case params.Has("session_id"):
		identity, err = self.Sessions.ResolveText(params.Get("session_id"))
		if nil != err {
			return nil, statusError(CodeInvalidParameter, err, "invalid session")
		}
	case params.Has("jscode"):
		identity, err = self.Sessions.Identify(r.Context(), params.Get("jscode"))
		if nil != err {
			return nil, statusError(CodeInternalFault, err, "failed login code exchange")
		}
	default:
		return nil, statusError(CodeMissingParameter, nil, "missing parameter jscode or session_id")
	}

	bound, err := self.Sessions.BindStatus(r.Context(), kind, identity)
	if nil != err {
		return nil, statusError(CodeInternalFault, err, "failed bind status lookup")
	}
	rv := BindStatusBody{}
	if bound {
		rv.Status = 1
	}

	return rv, nil
}

func healthz(_ *http.Request, _ url.Values) (any, error) {
	return HealthBody{Status: "ok"}, nil
}

// required returns a CodeMissingParameter StatusError if one of names is absent from params.
// Present but empty parameters are accepted, the services validate their values.
func required(params url.Values, names ...string) error {
	for _, name := range names {
		if !params.Has(name) {
			return statusError(CodeMissingParameter, nil, "missing parameter %s", name)
		}
	}
	return nil
}

type serveFunc func(r *http.Request, params url.Values) (any, error)

// endpoint adapts a serveFunc to http.Handler, wrapping its result in an Envelope.
type endpoint struct {
	route string
	serve serveFunc
}

// ServeHTTP implements http.Handler.
func (self endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t0 := time.Now()
	obs := observability.GetObservability(r.Context())
	log := obs.Log().With("handler", self.route)

	var body any
	err := r.ParseForm()
	if nil != err {
		err = statusError(CodeInvalidParameter, err, "invalid request parameters")
	} else {
		body, err = self.serve(r, r.Form)
	}

	env := Envelope{Code: CodeOf(err), Body: body}
	switch {
	case nil == err:
	case CodeInternalFault == env.Code:
		// the diagnostic stays in the logs
		log.Error("request failed", "error", err)
		env.Body = FaultBody{Msg: "internal fault"}
	default:
		var serr *StatusError
		if errors.As(err, &serr) {
			log.Info("request refused", "code", serr.Code.String(), "reason", serr.Msg)
		}
		env.Body = nil
	}

	obs.Metric().ObserveRequest(self.route, int(env.Code), time.Since(t0))

	srz := transport.ForAccept(r.Header.Get("Accept"))
	srzenv, err := srz.Marshal(env)
	if nil != err {
		log.Error("failed response serialization", "error", err)
		http.Error(w, "internal fault", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", srz.ContentType())
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(srzenv)
	if nil != err {
		log.Debug("failed delivering response", "error", err)
	}
}
