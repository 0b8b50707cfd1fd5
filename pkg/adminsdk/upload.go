package adminsdk

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
)

// MaxUploadSize is the largest file the gateway will send.
const MaxUploadSize = 5 << 20

// AllowedUploadTypes lists the MIME types accepted for upload.
var AllowedUploadTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"application/pdf",
}

// File is an upload. ContentType may be empty; it is then sniffed.
type File struct {
	Field       string // form field name, defaults to "file"
	Name        string
	ContentType string
	Data        []byte
}

// ValidateFile checks size and type before anything touches the network.
func ValidateFile(f File) error {
	if len(f.Data) == 0 {
		return &Error{Kind: KindValidation, Message: "file is empty"}
	}
	if len(f.Data) > MaxUploadSize {
		return &Error{
			Kind:    KindFileSize,
			Message: fmt.Sprintf("file is %d bytes, limit is %d", len(f.Data), MaxUploadSize),
		}
	}

	ct := uploadContentType(f)
	if !slices.Contains(AllowedUploadTypes, ct) {
		if ct == "" {
			ct = "unknown"
		}
		return &Error{
			Kind:    KindFileType,
			Message: fmt.Sprintf("file type %s is not allowed", ct),
		}
	}
	return nil
}

func uploadContentType(f File) string {
	if f.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(f.ContentType); err == nil {
			return strings.ToLower(mt)
		}
		return strings.ToLower(f.ContentType)
	}
	if ct, ok := SniffBinary(f.Data); ok {
		return ct
	}
	return http.DetectContentType(f.Data)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody builds the form. String fields are sanitized, the file
// content is sent as is.
func multipartBody(f File, fields map[string]string) (*requestBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if err := w.WriteField(name, SanitizeString(fields[name])); err != nil {
			return nil, err
		}
	}

	field := f.Field
	if field == "" {
		field = "file"
	}
	name := f.Name
	if name == "" {
		name = "upload"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(name)))
	h.Set("Content-Type", uploadContentType(f))

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return &requestBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

// UploadFile validates f and posts it as multipart/form-data together with
// the given form fields.
func (c *Client) UploadFile(ctx context.Context, path string, f File, fields map[string]string, opts RequestOptions) (*Payload, error) {
	if err := ValidateFile(f); err != nil {
		return nil, err
	}

	body, err := multipartBody(f, fields)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "failed to encode upload", Err: err}
	}

	return c.do(ctx, http.MethodPost, path, body, opts)
}
