package transport

import (
	"bytes"
	"errors"
	"testing"
)

type envelope struct {
	Code int            `json:"code" cbor:"1,keyasint"`
	Body map[string]any `json:"body,omitempty" cbor:"2,keyasint,omitempty"`
}

type checkedMsg struct {
	Id string `json:"id" cbor:"1,keyasint"`
}

func (self checkedMsg) Check() error {
	if "" == self.Id {
		return errors.New("empty id")
	}
	return nil
}

func TestJSONEnvelope(t *testing.T) {
	srz := WrapInSafeSerializer(JSONSerializer{})
	data, err := srz.Marshal(envelope{Code: -4})
	if nil != err {
		t.Fatalf("failed Marshal, got error %v", err)
	}
	if `{"code":-4}` != string(data) {
		t.Errorf("unexpected JSON %s", data)
	}
	if ContentTypeJSON != srz.ContentType() {
		t.Errorf("ContentType control, %s != %s", srz.ContentType(), ContentTypeJSON)
	}
}

func TestCBORDeterministic(t *testing.T) {
	srz := CBORSerializer{}
	msg := envelope{Code: 0, Body: map[string]any{"public_key": "pem", "a": 1, "zz": true}}
	first, err := srz.Marshal(msg)
	if nil != err {
		t.Fatalf("failed Marshal, got error %v", err)
	}
	for i := range 8 {
		again, _ := srz.Marshal(msg)
		if !bytes.Equal(first, again) {
			t.Fatalf("#%d encoding is not deterministic", i)
		}
	}

	var decoded envelope
	err = srz.Unmarshal(first, &decoded)
	if nil != err {
		t.Fatalf("failed Unmarshal, got error %v", err)
	}
	if "pem" != decoded.Body["public_key"] {
		t.Errorf("decoded public_key control, got %v", decoded.Body["public_key"])
	}
}

func TestSafeSerializerCheck(t *testing.T) {
	for _, srz := range []SafeSerializer{WrapInSafeSerializer(JSONSerializer{}), WrapInSafeSerializer(CBORSerializer{})} {
		_, err := srz.Marshal(checkedMsg{})
		if !errors.Is(err, ValidationError) {
			t.Errorf("%s: expected ValidationError, got %v", srz.ContentType(), err)
		}

		data, err := srz.Serializer.Marshal(checkedMsg{})
		if nil != err {
			t.Fatalf("%s: failed raw Marshal, got error %v", srz.ContentType(), err)
		}
		var msg checkedMsg
		err = srz.Unmarshal(data, &msg)
		if !errors.Is(err, ValidationError) {
			t.Errorf("%s: expected ValidationError on Unmarshal, got %v", srz.ContentType(), err)
		}

		err = srz.Unmarshal([]byte{0xFF, 0x00}, &msg)
		if !errors.Is(err, SerializationError) {
			t.Errorf("%s: expected SerializationError, got %v", srz.ContentType(), err)
		}
	}
}

func TestWrapInSafeSerializerIdempotent(t *testing.T) {
	once := WrapInSafeSerializer(JSONSerializer{})
	twice := WrapInSafeSerializer(once)
	if _, nested := twice.Serializer.(SafeSerializer); nested {
		t.Error("SafeSerializer was wrapped twice")
	}
}

func TestNegotiation(t *testing.T) {
	cases := []struct {
		accept string
		want   string
	}{
		{"", ContentTypeJSON},
		{"*/*", ContentTypeJSON},
		{"application/cbor", ContentTypeCBOR},
		{"text/html, application/cbor;q=0.9", ContentTypeCBOR},
		{"application/json", ContentTypeJSON},
	}
	for _, c := range cases {
		if got := ForAccept(c.accept).ContentType(); got != c.want {
			t.Errorf("ForAccept(%q) -> %s, want %s", c.accept, got, c.want)
		}
	}

	srz, err := ForContentType("application/json; charset=utf-8")
	if nil != err || ContentTypeJSON != srz.ContentType() {
		t.Errorf("ForContentType json failed, got (%v, %v)", srz.Serializer, err)
	}
	_, err = ForContentType("text/plain")
	if nil == err {
		t.Error("ForContentType accepted text/plain")
	}
}
