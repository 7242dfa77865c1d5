package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"
)

const (
	sidSize   = 40
	nonceSize = 16
	macSize   = 16
)

// Sid is a session identifier that its SidFactory can validate without lookup.
//
//	[0:8]   issue time, nanoseconds since the SidFactory creation
//	[8:24]  random nonce
//	[24:40] truncated HMAC-SHA256 of [0:24]
type Sid [sidSize]byte

func (self Sid) issued() time.Duration {
	return time.Duration(binary.BigEndian.Uint64(self[0:8]))
}

// String returns the url safe base64 encoding of the Sid.
func (self Sid) String() string {
	return base64.RawURLEncoding.EncodeToString(self[:])
}

// ParseSid decodes the text produced by Sid.String.
// The returned Sid still needs to be validated by its SidFactory.
func ParseSid(text string) (Sid, error) {
	var sid Sid
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if nil != err {
		return sid, wrapError(err, "failed base64 decoding")
	}
	if sidSize != len(raw) {
		return sid, newError("invalid Sid size %d", len(raw))
	}
	copy(sid[:], raw)

	return sid, nil
}

// SidFactory issues Sid that expire after a fixed lifetime.
// Sid issued by another SidFactory are rejected, each SidFactory draws a random MAC key.
// SidFactory is safe for concurrent use.
type SidFactory struct {
	clock    clock
	lifetime time.Duration
	key      [32]byte
}

// NewSidFactory returns a SidFactory issuing Sid valid for lifetime.
// It errors if lifetime is shorter than slotCount nanoseconds.
func NewSidFactory(lifetime time.Duration) (*SidFactory, error) {
	if lifetime < slotCount {
		return nil, newError("invalid lifetime %v", lifetime)
	}
	c, err := newClock(lifetime / (slotCount - 1))
	if nil != err {
		return nil, wrapError(err, "failed clock creation")
	}
	sf := &SidFactory{clock: c, lifetime: lifetime}
	rand.Read(sf.key[:])

	return sf, nil
}

// Lifetime returns the validity period of issued Sid.
func (self *SidFactory) Lifetime() time.Duration {
	return self.lifetime
}

// New issues a Sid.
func (self *SidFactory) New() Sid {
	var sid Sid
	binary.BigEndian.PutUint64(sid[0:8], uint64(self.clock.elapsed()))
	rand.Read(sid[8 : 8+nonceSize])
	copy(sid[24:], self.mac(sid))

	return sid
}

// Check errors with ErrKeyTampered if sid was not issued by the SidFactory,
// and with ErrKeyExpired if sid is older than the SidFactory lifetime.
func (self *SidFactory) Check(sid Sid) error {
	if !hmac.Equal(sid[24:], self.mac(sid)) {
		return raiseError(ErrKeyTampered, "invalid Sid mac")
	}
	age := self.clock.elapsed() - sid.issued()
	if age < 0 || age >= self.lifetime {
		return raiseError(ErrKeyExpired, "Sid age %v out of lifetime %v", age, self.lifetime)
	}

	return nil
}

// Tick returns the clock tick at which sid was issued.
func (self *SidFactory) Tick(sid Sid) int64 {
	return self.clock.tickAt(sid.issued())
}

func (self *SidFactory) mac(sid Sid) []byte {
	h := hmac.New(sha256.New, self.key[:])
	h.Write(sid[:24])
	return h.Sum(nil)[:macSize]
}

var _ KeyFactory[Sid] = &SidFactory{}
