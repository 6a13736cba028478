package tile

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeDataURL wraps encoded image bytes for callers without file access
func EncodeDataURL(f Format, data []byte) string {
	return "data:" + f.MIME() + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the payload of a data URL. Everything up to the
// last comma is ignored, so a bare base64 string is accepted as well.
func DecodeDataURL(s string) ([]byte, error) {
	payload := s
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		payload = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return data, nil
}
