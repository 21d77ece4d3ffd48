package drive

import (
	"bytes"
	"path"
	"strings"
)

// DefaultContentType is used when neither the extension nor the content
// identifies the type.
const DefaultContentType = "application/octet-stream"

// extensionTypes maps lower-case file extensions to MIME types.
var extensionTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".zip":  "application/zip",
}

// DetectContentType resolves a MIME type for a named byte payload.
// The extension wins when known; otherwise the first bytes are checked
// against a fixed magic-number table; anything else is octet-stream.
func DetectContentType(name string, data []byte) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := sniffContentType(data); ct != "" {
		return ct
	}
	return DefaultContentType
}

// sniffContentType inspects the leading bytes against known signatures.
// Returns "" when nothing matches.
func sniffContentType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x42, 0x4D}):
		return "image/bmp"
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "video/mp4"
	case isZip(data):
		return "application/zip"
	}
	return ""
}

// isZip matches the PK signature with its three trailer variants
// (regular, empty archive, spanned archive).
func isZip(data []byte) bool {
	if len(data) < 4 || data[0] != 0x50 || data[1] != 0x4B {
		return false
	}
	switch {
	case data[2] == 0x03 && data[3] == 0x04:
		return true
	case data[2] == 0x05 && data[3] == 0x06:
		return true
	case data[2] == 0x07 && data[3] == 0x08:
		return true
	}
	return false
}
