// Package digest reduces a password to the fixed-length fingerprint that clients
// register and later encrypt into authentication tokens.
//
// The server never computes digests, it only compares a decrypted token with the
// fingerprint supplied at registration.
package digest

import (
	"crypto"
	"encoding/hex"

	"code.autosig.org/golang/internal/algos"
)

// DefaultAlgorithm is the hash used when no algorithm is configured.
const DefaultAlgorithm = algos.HASH_SHA256

// Digester computes password fingerprints with a fixed hash algorithm.
// The zero Digester uses DefaultAlgorithm.
type Digester struct {
	name string
	hash crypto.Hash
}

// New returns a Digester using the hash registered under name in internal/algos.
// An empty name selects DefaultAlgorithm.
func New(name string) (Digester, error) {
	if "" == name {
		name = DefaultAlgorithm
	}
	hash, err := algos.GetHash(name)
	if nil != err {
		return Digester{}, wrapError(err, "invalid digest algorithm")
	}

	return Digester{name: name, hash: hash}, nil
}

// Algorithm returns the name of the hash used by the Digester.
func (self Digester) Algorithm() string {
	if 0 == self.hash {
		return DefaultAlgorithm
	}
	return self.name
}

// Size returns the length in bytes of the fingerprints returned by Digest.
func (self Digester) Size() int {
	return hex.EncodedLen(self.cryptoHash().Size())
}

// Digest returns the lowercase hex encoding of the password hash.
func (self Digester) Digest(password []byte) []byte {
	h := self.cryptoHash().New()
	h.Write(password)
	return hex.AppendEncode(nil, h.Sum(nil))
}

func (self Digester) cryptoHash() crypto.Hash {
	if 0 == self.hash {
		return crypto.SHA256
	}
	return self.hash
}

// Digest returns the fingerprint of password using DefaultAlgorithm.
func Digest(password []byte) []byte {
	return Digester{}.Digest(password)
}
