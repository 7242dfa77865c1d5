package transport

import (
	"mime"
	"strings"
)

// ForAccept selects the Serializer matching an HTTP Accept header.
// It returns a JSON serializer unless CBOR is explicitly accepted.
func ForAccept(accept string) SafeSerializer {
	for _, part := range strings.Split(accept, ",") {
		mediatype, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if nil != err {
			continue
		}
		if ContentTypeCBOR == mediatype {
			return WrapInSafeSerializer(CBORSerializer{})
		}
	}

	return WrapInSafeSerializer(JSONSerializer{})
}

// ForContentType selects the Serializer able to read a body of the given Content-Type.
// It errors if the media type is not supported.
func ForContentType(contentType string) (SafeSerializer, error) {
	mediatype, _, err := mime.ParseMediaType(contentType)
	if nil != err {
		return SafeSerializer{}, wrapError(err, "invalid Content-Type %q", contentType)
	}
	switch mediatype {
	case ContentTypeJSON:
		return WrapInSafeSerializer(JSONSerializer{}), nil
	case ContentTypeCBOR:
		return WrapInSafeSerializer(CBORSerializer{}), nil
	}

	return SafeSerializer{}, newError("unsupported media type %s", mediatype)
}
