package llm

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

// SniffMIME returns the content type of an image payload, parameters stripped.
func SniffMIME(b []byte) string {
	mt := http.DetectContentType(b)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

// DataURL encodes b as a base64 data URL using its sniffed content type.
func DataURL(b []byte) (string, string) {
	mt := SniffMIME(b)
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b), mt
}

// DecodeDataURL decodes a base64 data URL (as produced by browser camera
// capture). A bare base64 string without the data: prefix is accepted too.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	mt := ""
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", common.InvalidInput("malformed data URL")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", common.InvalidInput("data URL is not base64 encoded")
		}
		mt = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", common.InvalidInput("decode base64 image: %v", err)
	}
	if mt == "" {
		mt = SniffMIME(b)
	}
	return b, mt, nil
}
