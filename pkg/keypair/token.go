package keypair

import (
	"encoding/base64"
	"strings"
)

// EncodeToken returns the base64 text used to transport ciphertext in requests.
func EncodeToken(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// DecodeToken reverses EncodeToken. It accepts the standard base64 alphabet and,
// failing that, the unpadded URL alphabet. It errors with ErrDecode if token is
// not valid base64 text.
// Spaces are read as '+', query strings written without escaping turn '+' into spaces.
func DecodeToken(token string) ([]byte, error) {
	token = strings.ReplaceAll(strings.TrimSpace(token), " ", "+")
	ciphertext, err := base64.StdEncoding.DecodeString(token)
	if nil == err {
		return ciphertext, nil
	}
	ciphertext, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if nil != err {
		return nil, wrapFlagError(ErrDecode, err, "invalid token encoding")
	}

	return ciphertext, nil
}
