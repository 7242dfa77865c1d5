package credentials

import (
	"strconv"
	"strings"

	"code.autosig.org/golang/pkg/keypair"
)

// AccountKind tells which population an account belongs to.
// Teachers and students live in separate namespaces, the same id may exist in both.
type AccountKind int

const (
	Teacher AccountKind = 0
	Student AccountKind = 1
)

// Kinds lists the supported AccountKind values.
var Kinds = []AccountKind{Teacher, Student}

// ParseAccountKind parses the numeric ("0", "1") or named ("teacher", "student") form of an AccountKind.
// It errors with ErrInvalidKind if s does not name a supported kind.
func ParseAccountKind(s string) (AccountKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "teacher":
		return Teacher, nil
	case "1", "student":
		return Student, nil
	}
	return Teacher, raiseError(ErrInvalidKind, "unknown account kind %q", s)
}

// Check returns an ErrInvalidKind error if the AccountKind is not supported.
func (self AccountKind) Check() error {
	switch self {
	case Teacher, Student:
		return nil
	}
	return raiseError(ErrInvalidKind, "unknown account kind %d", int(self))
}

// String implements fmt.Stringer.
func (self AccountKind) String() string {
	switch self {
	case Teacher:
		return "teacher"
	case Student:
		return "student"
	}
	return "kind(" + strconv.Itoa(int(self)) + ")"
}

// BindingField names one of the access point identifiers bound to an account.
type BindingField int

const (
	BSSID BindingField = iota + 1
	SSID
)

const (
	// MaxIdLen is the maximum length in bytes of an account id.
	MaxIdLen = 64

	// MaxBSSIDLen is the maximum length in bytes of a bound BSSID.
	MaxBSSIDLen = 18

	// MaxSSIDLen is the maximum length in bytes of a bound SSID.
	MaxSSIDLen = 32
)

// ParseBindingField parses "bssid" or "ssid".
func ParseBindingField(s string) (BindingField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bssid":
		return BSSID, nil
	case "ssid":
		return SSID, nil
	}
	return 0, raiseError(ErrValidation, "unknown binding field %q", s)
}

// String implements fmt.Stringer.
func (self BindingField) String() string {
	switch self {
	case BSSID:
		return "BSSID"
	case SSID:
		return "SSID"
	}
	return "field(" + strconv.Itoa(int(self)) + ")"
}

// Column returns the storage column holding the BindingField.
func (self BindingField) Column() string {
	switch self {
	case BSSID:
		return "bssid"
	case SSID:
		return "ssid"
	}
	return ""
}

// MaxLen returns the maximum length in bytes of the BindingField values.
func (self BindingField) MaxLen() int {
	switch self {
	case BSSID:
		return MaxBSSIDLen
	case SSID:
		return MaxSSIDLen
	}
	return 0
}

// Check returns an ErrValidation error if value can not be stored in the BindingField.
func (self BindingField) Check(value string) error {
	if "" == self.Column() {
		return raiseError(ErrValidation, "unknown binding field %d", int(self))
	}
	if len(value) > self.MaxLen() {
		return raiseError(ErrValidation, "%s too long, len > %d", self, self.MaxLen())
	}
	return nil
}

// Record holds the credentials and access point binding of an account.
//
// PrivateKey is kept next to PublicKey so that tokens can be decrypted on the server.
// It is excluded from json serialization and never printed.
type Record struct {
	Kind           AccountKind        `json:"kind" cbor:"1,keyasint"`
	Id             string             `json:"id" cbor:"2,keyasint"`
	DisplayName    string             `json:"name" cbor:"3,keyasint"`
	BindingBSSID   string             `json:"bssid" cbor:"4,keyasint"`
	BindingSSID    string             `json:"ssid" cbor:"5,keyasint"`
	ExpectedDigest []byte             `json:"-" cbor:"6,keyasint"`
	PublicKey      keypair.PublicPEM  `json:"public_key" cbor:"7,keyasint"`
	PrivateKey     keypair.PrivatePEM `json:"-" cbor:"8,keyasint"`
	WxOpenId       string             `json:"wx_openid,omitempty" cbor:"9,keyasint,omitempty"`
}

// Check returns an ErrValidation error if the Record is invalid.
func (self *Record) Check() error {
	if nil == self {
		return raiseError(ErrValidation, "nil Record")
	}
	if err := self.Kind.Check(); nil != err {
		return err
	}
	if err := CheckId(self.Id); nil != err {
		return err
	}
	if 0 == len(strings.TrimSpace(self.DisplayName)) {
		return raiseError(ErrValidation, "empty DisplayName")
	}
	if err := BSSID.Check(self.BindingBSSID); nil != err {
		return err
	}
	if err := SSID.Check(self.BindingSSID); nil != err {
		return err
	}
	if 0 == len(self.ExpectedDigest) {
		return raiseError(ErrValidation, "empty ExpectedDigest")
	}
	if "" == self.PublicKey || "" == self.PrivateKey {
		return raiseError(ErrValidation, "missing keypair")
	}

	return nil
}

// CheckId returns an ErrValidation error if id can not identify an account.
func CheckId(id string) error {
	if "" == id {
		return raiseError(ErrValidation, "empty id")
	}
	if len(id) > MaxIdLen {
		return raiseError(ErrValidation, "id too long, len > %d", MaxIdLen)
	}
	return nil
}

// Binding returns the value of the field binding.
func (self *Record) Binding(field BindingField) string {
	switch field {
	case BSSID:
		return self.BindingBSSID
	case SSID:
		return self.BindingSSID
	}
	return ""
}

// SetBinding sets the value of the field binding.
func (self *Record) SetBinding(field BindingField, value string) {
	switch field {
	case BSSID:
		self.BindingBSSID = value
	case SSID:
		self.BindingSSID = value
	}
}
