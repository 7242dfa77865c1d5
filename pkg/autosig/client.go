package autosig

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"code.autosig.org/golang/internal/transport"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/digest"
	"code.autosig.org/golang/pkg/keypair"
)

// maxResponseSize bounds the API responses read by Client.
const maxResponseSize = 1 << 16

// Client calls an autosig API server.
//
// Passwords never leave the Client, it sends their digest at registration
// and tokens, digests encrypted with the account public key, afterward.
type Client struct {
	// BaseURL is the server URL, eg "https://autosig.example.com".
	BaseURL string

	// HTTP is the http.Client used to reach the server, http.DefaultClient if nil.
	HTTP *http.Client

	// Digester digests passwords, it must use the algorithm configured on the server.
	Digester digest.Digester

	// Serializer selects the response format, JSON if nil.
	Serializer transport.Serializer
}

// QueryPublicKey returns the public key of the kind account id.
func (self Client) QueryPublicKey(ctx context.Context, kind credentials.AccountKind, id string) (keypair.PublicPEM, error) {
	params := url.Values{}
	params.Set("id", id)
	params.Set("type", strconv.Itoa(int(kind)))
	body, err := call[PublicKeyBody](ctx, self, RouteQueryPublicKey, params)
	if nil != err {
		return "", err
	}

	return keypair.PublicPEM(body.PublicKey), nil
}

// Register registers the teacher account id.
func (self Client) Register(ctx context.Context, id string, name string, bssid string, password []byte) error {
	params := url.Values{}
	params.Set("id", id)
	params.Set("name", name)
	params.Set("bssid", bssid)
	params.Set("token", string(self.Digester.Digest(password)))
	_, err := call[struct{}](ctx, self, RouteRegisterTeacher, params)

	return err
}

// Token returns the base64 encoded token that authenticates password for the kind account id.
func (self Client) Token(ctx context.Context, kind credentials.AccountKind, id string, password []byte) (string, error) {
	pub, err := self.QueryPublicKey(ctx, kind, id)
	if nil != err {
		return "", err
	}
	ciphertext, err := keypair.Encrypt(pub, self.Digester.Digest(password))
	if nil != err {
		return "", wrapError(err, "failed token encryption")
	}

	return keypair.EncodeToken(ciphertext), nil
}

// UpdateBSSID changes the BSSID bound to the teacher account id.
func (self Client) UpdateBSSID(ctx context.Context, id string, bssid string, password []byte) error {
	return self.updateBinding(ctx, id, credentials.BSSID, bssid, password)
}

// UpdateSSID changes the SSID bound to the teacher account id.
func (self Client) UpdateSSID(ctx context.Context, id string, ssid string, password []byte) error {
	return self.updateBinding(ctx, id, credentials.SSID, ssid, password)
}

func (self Client) updateBinding(ctx context.Context, id string, field credentials.BindingField, value string, password []byte) error {
	token, err := self.Token(ctx, credentials.Teacher, id, password)
	if nil != err {
		return err
	}
	route := RouteAlterBSSID
	if credentials.SSID == field {
		route = RouteAlterSSID
	}
	params := url.Values{}
	params.Set("id", id)
	params.Set(field.Column(), value)
	params.Set("token", token)
	_, err = call[struct{}](ctx, self, route, params)

	return err
}

// WxLogin exchanges a WeChat login code for an autosig session.
func (self Client) WxLogin(ctx context.Context, jscode string) (LoginBody, error) {
	params := url.Values{}
	params.Set("jscode", jscode)
	body, err := call[LoginBody](ctx, self, RouteWxLogin, params)
	if nil != err {
		return LoginBody{}, err
	}

	return *body, nil
}

// WxLogout revokes the sessionId session.
func (self Client) WxLogout(ctx context.Context, sessionId string) error {
	params := url.Values{}
	params.Set("session_id", sessionId)
	_, err := call[struct{}](ctx, self, RouteWxLogout, params)

	return err
}

// QueryBindStatus returns true if a kind account is bound to the WeChat user of session sessionId.
func (self Client) QueryBindStatus(ctx context.Context, kind credentials.AccountKind, sessionId string) (bool, error) {
	params := url.Values{}
	params.Set("session_id", sessionId)
	params.Set("type", strconv.Itoa(int(kind)))
	body, err := call[BindStatusBody](ctx, self, RouteQueryBindStatus, params)
	if nil != err {
		return false, err
	}

	return 1 == body.Status, nil
}

// response is the Envelope decoded by Client.
type response[T any] struct {
	Code Code `json:"code"`
	Body *T   `json:"body,omitempty"`
}

// call GETs route with params and decodes the response Envelope.
// It returns a *StatusError if the server replied with a non zero code.
func call[T any](ctx context.Context, client Client, route string, params url.Values) (*T, error) {
	srz := transport.ForAccept("")
	if nil != client.Serializer {
		srz = transport.WrapInSafeSerializer(client.Serializer)
	}
	hc := client.HTTP
	if nil == hc {
		hc = http.DefaultClient
	}

	target := strings.TrimSuffix(client.BaseURL, "/") + route + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if nil != err {
		return nil, wrapError(err, "failed creating %s request", route)
	}
	req.Header.Set("Accept", srz.ContentType())

	resp, err := hc.Do(req)
	if nil != err {
		return nil, wrapError(err, "failed %s request", route)
	}
	defer resp.Body.Close()
	if http.StatusOK != resp.StatusCode {
		return nil, newError("%s request failed with http status %d", route, resp.StatusCode)
	}
	srzresp, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if nil != err {
		return nil, wrapError(err, "failed reading %s response", route)
	}
	rsrz, err := transport.ForContentType(resp.Header.Get("Content-Type"))
	if nil != err {
		return nil, wrapError(err, "invalid %s response", route)
	}

	var rv response[T]
	err = rsrz.Unmarshal(srzresp, &rv)
	if nil != err {
		return nil, wrapError(err, "failed decoding %s response", route)
	}
	if CodeOK != rv.Code {
		return nil, statusError(rv.Code, nil, "%s refused", route)
	}
	if nil == rv.Body {
		rv.Body = new(T)
	}

	return rv.Body, nil
}
