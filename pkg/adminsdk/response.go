package adminsdk

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// PayloadKind says which field of a Payload holds the body.
type PayloadKind string

const (
	PayloadEmpty  PayloadKind = "empty"
	PayloadJSON   PayloadKind = "json"
	PayloadBinary PayloadKind = "binary"
	PayloadText   PayloadKind = "text"
)

// Payload is a classified successful response.
type Payload struct {
	Kind        PayloadKind
	StatusCode  int
	ContentType string // media type without parameters; sniffed when absent
	Header      http.Header

	JSON   json.RawMessage
	Binary []byte
	Text   string
}

// Decode unmarshals a JSON payload into v.
func (p *Payload) Decode(v any) error {
	if p.Kind != PayloadJSON {
		return &Error{Kind: KindDecode, Message: "response is not JSON (" + string(p.Kind) + ")"}
	}
	dec := json.NewDecoder(bytes.NewReader(p.JSON))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &Error{Kind: KindDecode, Message: "failed to decode response", Err: err}
	}
	return nil
}

type signature struct {
	contentType string
	magic       []byte
}

// signatures is the one table of binary magic bytes.
var signatures = []signature{
	{"image/png", []byte{0x89, 0x50, 0x4E, 0x47}},
	{"image/jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"image/gif", []byte{0x47, 0x49, 0x46, 0x38}},
	{"application/pdf", []byte{0x25, 0x50, 0x44, 0x46}},
}

// SniffBinary matches data against the known file signatures.
func SniffBinary(data []byte) (string, bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.contentType, true
		}
	}
	return "", false
}

// fileEndpointSuffixes mark paths that serve files.
var fileEndpointSuffixes = []string{"/license", "/image", "/file"}

func isFileEndpoint(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")
	for _, suffix := range fileEndpointSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func isBinaryContentType(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return true
	case mediaType == "application/pdf", mediaType == "application/octet-stream":
		return true
	}
	return false
}

func isJSONContentType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// classify turns a raw response into a Payload, or an *Error for non-2xx.
func classify(path string, status int, header http.Header, body []byte) (*Payload, *Error) {
	if status < 200 || status >= 300 {
		return nil, parseErrorResponse(status, body)
	}

	mediaType := ""
	if ct := header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = strings.ToLower(mt)
		}
	}

	p := &Payload{StatusCode: status, ContentType: mediaType, Header: header}

	switch {
	case len(body) == 0:
		p.Kind = PayloadEmpty
		return p, nil
	case isBinaryContentType(mediaType):
		p.Kind = PayloadBinary
		p.Binary = body
		return p, nil
	case mediaType == "":
		if sniffed, ok := SniffBinary(body); ok {
			p.Kind = PayloadBinary
			p.ContentType = sniffed
			p.Binary = body
			return p, nil
		}
	}

	if isFileEndpoint(path) && !isJSONContentType(mediaType) {
		p.Kind = PayloadBinary
		p.Binary = body
		return p, nil
	}

	if json.Valid(body) {
		p.Kind = PayloadJSON
		p.JSON = body
		return p, nil
	}

	p.Kind = PayloadText
	p.Text = string(body)
	return p, nil
}
