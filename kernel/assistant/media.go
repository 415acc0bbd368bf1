package assistant

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/halcyonworks/tempo/kernel/model"
)

// ParseDataURI decodes "data:<mime>;base64,<payload>" into an inline blob.
// Only base64-encoded payloads are supported.
func ParseDataURI(raw string) (*model.Blob, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, fmt.Errorf("assistant: media is not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("assistant: malformed data uri: missing payload")
	}
	mimeType, encoding, hasEncoding := strings.Cut(meta, ";")
	if !hasEncoding || !strings.EqualFold(strings.TrimSpace(encoding), "base64") {
		return nil, fmt.Errorf("assistant: unsupported data uri encoding %q", meta)
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return nil, fmt.Errorf("assistant: data uri has no mime type")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("assistant: decode data uri payload: %w", err)
	}
	return &model.Blob{MIMEType: mimeType, Data: data}, nil
}
