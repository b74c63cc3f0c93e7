package bridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/wippyai/capture-bridge/errors"
)

// CaptureResult is the outcome of one capture call.
// On success Template holds the base64 encoding of TemplateSize raw bytes;
// on failure only ErrorCode is meaningful.
type CaptureResult struct {
	Template     string
	TemplateSize int
	Quality      int
	ErrorCode    int32
	Success      bool
}

type successJSON struct {
	Template     string `json:"templateEncoded"`
	TemplateSize int    `json:"templateSize"`
	Quality      int    `json:"quality"`
	Success      bool   `json:"success"`
}

type failureJSON struct {
	ErrorCode int32 `json:"errorCode"`
	Success   bool  `json:"success"`
}

// MarshalJSON emits either the success or the failure object, never a mix.
func (r CaptureResult) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successJSON{
			Success:      true,
			Template:     r.Template,
			TemplateSize: r.TemplateSize,
			Quality:      r.Quality,
		})
	}
	return json.Marshal(failureJSON{ErrorCode: r.ErrorCode})
}

// UnmarshalJSON accepts either object shape.
func (r *CaptureResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Template     string `json:"templateEncoded"`
		TemplateSize int    `json:"templateSize"`
		Quality      int    `json:"quality"`
		ErrorCode    int32  `json:"errorCode"`
		Success      bool   `json:"success"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Success {
		*r = CaptureResult{
			Success:      true,
			Template:     raw.Template,
			TemplateSize: raw.TemplateSize,
			Quality:      raw.Quality,
		}
		return nil
	}
	*r = CaptureResult{ErrorCode: raw.ErrorCode}
	return nil
}

// Decode returns the raw template bytes.
func (r CaptureResult) Decode() ([]byte, error) {
	if !r.Success {
		return nil, errors.InvalidInput(errors.PhaseEncode, "capture result has no template")
	}
	raw, err := DecodeTemplate(r.Template)
	if err != nil {
		return nil, err
	}
	if len(raw) != r.TemplateSize {
		return nil, errors.InvalidData(errors.PhaseEncode, fmt.Sprintf("decoded %d bytes, result reports %d", len(raw), r.TemplateSize))
	}
	return raw, nil
}

// EncodeTemplate returns the transport encoding of raw template bytes:
// padded standard base64, 4 characters per 3 bytes.
func EncodeTemplate(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeTemplate reverses EncodeTemplate.
func DecodeTemplate(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "decode template")
	}
	return raw, nil
}

func failure(code int32) CaptureResult {
	return CaptureResult{ErrorCode: code}
}
