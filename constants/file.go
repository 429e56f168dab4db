package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for form scans.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// AllowedMIMETypes holds the sniffed content types a provider can analyze.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/gif":       {},
	"application/pdf": {},
}

// DefaultMaxImageBytes caps an uploaded scan when MAX_IMAGE_MB is unset.
const DefaultMaxImageBytes = 10 << 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedMIME reports whether a sniffed content type (parameters ignored) is accepted.
func IsAllowedMIME(mime string) bool {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	_, ok := AllowedMIMETypes[strings.ToLower(strings.TrimSpace(mime))]
	return ok
}
