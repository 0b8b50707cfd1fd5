package adminsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Download is a binary file served by the API.
type Download struct {
	ContentType string
	Data        []byte
}

// DoctorLicense downloads a doctor's license document. A doctor without a
// license on file is (nil, nil).
func (c *Client) DoctorLicense(ctx context.Context, doctorID string) (*Download, error) {
	return c.download(ctx, Doctor.RecordPath(url.PathEscape(doctorID))+"/license")
}

// HospitalImage downloads a hospital's image, (nil, nil) when it has none.
func (c *Client) HospitalImage(ctx context.Context, hospitalID string) (*Download, error) {
	return c.download(ctx, Hospital.RecordPath(url.PathEscape(hospitalID))+"/image")
}

// UploadHospitalImage replaces a hospital's image.
func (c *Client) UploadHospitalImage(ctx context.Context, hospitalID string, f File) (Record, error) {
	if f.Field == "" {
		f.Field = "image"
	}

	path := Hospital.RecordPath(url.PathEscape(hospitalID)) + "/image"
	payload, err := c.UploadFile(ctx, path, f, nil, RequestOptions{})
	if err != nil {
		return nil, err
	}
	c.mutated(Hospital)
	return unwrapRecord(payload, string(Hospital))
}

func (c *Client) download(ctx context.Context, path string) (*Download, error) {
	payload, err := c.Get(ctx, path, RequestOptions{})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	switch payload.Kind {
	case PayloadBinary:
		return &Download{ContentType: payload.ContentType, Data: payload.Binary}, nil
	case PayloadEmpty:
		return nil, nil
	default:
		return nil, &Error{
			Kind:       KindDecode,
			StatusCode: http.StatusOK,
			Message:    "expected a file, got " + string(payload.Kind),
		}
	}
}
