// Package keypair generates the per account RSA keypairs and provides the
// PKCS#1 v1.5 encryption used to carry password digests to the server.
//
// Keys are exchanged and stored as PEM text. The public half is a PKIX
// "PUBLIC KEY" block, the private half a PKCS#1 "RSA PRIVATE KEY" block.
// PrivatePEM values never print their content.
package keypair

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
)

const (
	// MinBits is the smallest modulus size accepted by Generate.
	MinBits = 1024

	// DefaultBits is the modulus size used when Generate receives 0.
	DefaultBits = 2048

	pemPublicKey  = "PUBLIC KEY"
	pemPrivateKey = "RSA PRIVATE KEY"
)

// PublicPEM holds a PEM encoded RSA public key.
type PublicPEM string

// PrivatePEM holds a PEM encoded RSA private key.
// Its String, LogValue and MarshalJSON methods hide the key material.
type PrivatePEM string

const redacted = "[REDACTED]"

// String implements fmt.Stringer.
func (self PrivatePEM) String() string {
	return redacted
}

// GoString implements fmt.GoStringer.
func (self PrivatePEM) GoString() string {
	return redacted
}

// LogValue implements slog.LogValuer.
func (self PrivatePEM) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON implements json.Marshaler.
func (self PrivatePEM) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// KeyPair holds a matched pair of PEM encoded RSA keys.
type KeyPair struct {
	PublicKey  PublicPEM
	PrivateKey PrivatePEM
}

// Generate returns a fresh RSA KeyPair with a modulus of bits size.
// A zero bits selects DefaultBits. It errors if bits is below MinBits or if
// the system randomness source fails.
func Generate(bits int) (KeyPair, error) {
	if 0 == bits {
		bits = DefaultBits
	}
	if bits < MinBits {
		return KeyPair{}, newError("invalid key size %d, < %d", bits, MinBits)
	}

	privkey, err := rsa.GenerateKey(rand.Reader, bits)
	if nil != err {
		return KeyPair{}, wrapError(err, "failed rsa.GenerateKey")
	}

	pubder, err := x509.MarshalPKIXPublicKey(&privkey.PublicKey)
	if nil != err {
		return KeyPair{}, wrapError(err, "failed x509.MarshalPKIXPublicKey")
	}

	return KeyPair{
		PublicKey: PublicPEM(pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: pubder})),
		PrivateKey: PrivatePEM(pem.EncodeToMemory(&pem.Block{
			Type:  pemPrivateKey,
			Bytes: x509.MarshalPKCS1PrivateKey(privkey),
		})),
	}, nil
}

// Encrypt encrypts plaintext with pub using PKCS#1 v1.5 padding.
func Encrypt(pub PublicPEM, plaintext []byte) ([]byte, error) {
	pubkey, err := parsePublicKey(pub)
	if nil != err {
		return nil, err
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pubkey, plaintext)
	if nil != err {
		return nil, wrapError(err, "failed rsa.EncryptPKCS1v15")
	}

	return ciphertext, nil
}

// Decrypt decrypts ciphertext with priv. The private key is parsed for the
// duration of the call only.
// Every failure, including an unusable priv, is reported as an ErrDecode error.
func Decrypt(priv PrivatePEM, ciphertext []byte) ([]byte, error) {
	block, _ := pem.Decode([]byte(priv))
	if nil == block || pemPrivateKey != block.Type {
		return nil, raiseError(ErrDecode, "invalid private key PEM block")
	}
	privkey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if nil != err {
		return nil, wrapFlagError(ErrDecode, err, "failed x509.ParsePKCS1PrivateKey")
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, privkey, ciphertext)
	if nil != err {
		return nil, wrapFlagError(ErrDecode, err, "failed rsa.DecryptPKCS1v15")
	}

	return plaintext, nil
}

// Check returns an error if pub does not hold a PEM encoded RSA public key.
func (self PublicPEM) Check() error {
	_, err := parsePublicKey(self)
	return err
}

// Check returns an error if the KeyPair keys are not parseable.
// It does not verify that the keys are matching.
func (self KeyPair) Check() error {
	err := self.PublicKey.Check()
	if nil != err {
		return err
	}
	block, _ := pem.Decode([]byte(self.PrivateKey))
	if nil == block || pemPrivateKey != block.Type {
		return newError("invalid private key PEM block")
	}

	return nil
}

func parsePublicKey(pub PublicPEM) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pub))
	if nil == block {
		return nil, newError("invalid public key PEM block")
	}
	var key any
	var err error
	switch block.Type {
	case pemPublicKey:
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, newError("unsupported public key PEM type %q", block.Type)
	}
	if nil != err {
		return nil, wrapError(err, "failed parsing public key")
	}
	rsakey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, newError("public key is not an RSA key")
	}

	return rsakey, nil
}
