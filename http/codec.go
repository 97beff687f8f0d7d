package http

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"

	maxBodySize = 1 << 20
)

// MarshalMsgpack encodes v as msgpack, naming fields after their json tags.
func MarshalMsgpack(v any) ([]byte, error) {
	var b bytes.Buffer

	enc := msgpack.NewEncoder(&b)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// UnmarshalMsgpack decodes msgpack produced by MarshalMsgpack.
func UnmarshalMsgpack(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// decode reads the request body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return errors.New("reading body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	if len(body) > maxBodySize {
		return errors.New("body too large").
			WithType(ErrTypeBadRequest).
			WithTag("max_size", maxBodySize)
	}

	if len(body) == 0 {
		return nil
	}

	unmarshal := json.Unmarshal
	if mediaType(r.Header.Get("Content-Type")) == ContentTypeMsgpack {
		unmarshal = UnmarshalMsgpack
	}

	if err := unmarshal(body, v); err != nil {
		return errors.New("decoding body failed").
			WithType(ErrTypeBadRequest).
			WithTag("content_type", r.Header.Get("Content-Type")).
			Wrap(err)
	}
	return nil
}

// encode writes v with the content type the client accepts. Msgpack is
// used when asked for in the Accept header or when the request was msgpack.
func encode(w http.ResponseWriter, r *http.Request, status int, v any) {
	contentType := responseContentType(r)

	marshal := json.Marshal
	if contentType == ContentTypeMsgpack {
		marshal = MarshalMsgpack
	}

	b, err := marshal(v)
	if err != nil {
		logs.WithTag("path", r.URL.Path).
			Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(b)
}

func responseContentType(r *http.Request) string {
	for _, accept := range strings.Split(r.Header.Get("Accept"), ",") {
		switch mediaType(accept) {
		case ContentTypeMsgpack:
			return ContentTypeMsgpack
		case ContentTypeJSON:
			return ContentTypeJSON
		}
	}

	if mediaType(r.Header.Get("Content-Type")) == ContentTypeMsgpack {
		return ContentTypeMsgpack
	}
	return ContentTypeJSON
}

func mediaType(v string) string {
	t, _, err := mime.ParseMediaType(strings.TrimSpace(v))
	if err != nil {
		return ""
	}
	return t
}
