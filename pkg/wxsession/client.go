// Package wxsession exchanges WeChat mini-program login codes for user identities
// and keeps the resulting sessions.
//
// A session only tells which WeChat user is calling. It never authorizes a binding
// mutation, those require a password token.
package wxsession

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultEndpoint is the WeChat code2Session API.
const DefaultEndpoint = "https://api.weixin.qq.com/sns/jscode2session"

// DefaultTimeout bounds the code2Session call when Client.Timeout is 0.
const DefaultTimeout = 5 * time.Second

// Identity is the WeChat user identity returned by code2Session.
type Identity struct {
	OpenId     string
	SessionKey string
	UnionId    string
}

// LogValue implements slog.LogValuer, SessionKey is not logged.
func (self Identity) LogValue() slog.Value {
	return slog.GroupValue(slog.String("openid", self.OpenId))
}

// Exchanger maps a wx.login code to an Identity.
type Exchanger interface {
	Code2Session(ctx context.Context, jscode string) (Identity, error)
}

// Client calls the WeChat code2Session API.
type Client struct {
	AppId    string
	Secret   string
	Endpoint string
	HTTP     *http.Client
	Timeout  time.Duration
}

type code2SessionResponse struct {
	OpenId     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionId    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// Code2Session exchanges jscode for the Identity of the WeChat user that obtained it.
// It errors with ErrExchange if the API can not be reached in time or refuses jscode.
func (self Client) Code2Session(ctx context.Context, jscode string) (Identity, error) {
	if "" == jscode {
		return Identity{}, raiseError(ErrExchange, "empty jscode")
	}
	endpoint := self.Endpoint
	if "" == endpoint {
		endpoint = DefaultEndpoint
	}
	timeout := self.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := self.HTTP
	if nil == client {
		client = http.DefaultClient
	}

	params := url.Values{}
	params.Set("appid", self.AppId)
	params.Set("secret", self.Secret)
	params.Set("js_code", jscode)
	params.Set("grant_type", "authorization_code")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if nil != err {
		return Identity{}, wrapError(err, "failed creating request")
	}
	resp, err := client.Do(req)
	if nil != err {
		// url.Error repeats the request URL which holds the app secret
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return Identity{}, wrapFlagError(ErrExchange, err, "failed code2Session request")
	}
	defer resp.Body.Close()

	if http.StatusOK != resp.StatusCode {
		return Identity{}, raiseError(ErrExchange, "code2Session returned HTTP status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if nil != err {
		return Identity{}, wrapFlagError(ErrExchange, err, "failed reading code2Session response")
	}
	var c2s code2SessionResponse
	err = json.Unmarshal(body, &c2s)
	if nil != err {
		return Identity{}, wrapFlagError(ErrExchange, err, "failed decoding code2Session response")
	}
	if 0 != c2s.ErrCode {
		return Identity{}, raiseError(ErrExchange, "code2Session errcode %d, %s", c2s.ErrCode, c2s.ErrMsg)
	}
	if "" == c2s.OpenId {
		return Identity{}, raiseError(ErrExchange, "code2Session response without openid")
	}

	return Identity{OpenId: c2s.OpenId, SessionKey: c2s.SessionKey, UnionId: c2s.UnionId}, nil
}

var _ Exchanger = Client{}
