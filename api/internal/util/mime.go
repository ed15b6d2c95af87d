package util

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// DecodeBase64 tries the standard alphabet first, then URL-safe and unpadded variants.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b2, err2 := enc.DecodeString(s); err2 == nil {
			return b2, nil
		}
	}
	return nil, err
}

// PickMIME takes the declared MIME unless it is empty or generic, otherwise sniffs the bytes.
func PickMIME(declared string, data []byte) string {
	d := strings.ToLower(strings.TrimSpace(declared))
	if semi := strings.IndexByte(d, ';'); semi >= 0 {
		d = strings.TrimSpace(d[:semi])
	}
	if d != "" && d != "application/octet-stream" {
		return d
	}
	if len(data) > 0 {
		sniffed := http.DetectContentType(data)
		if semi := strings.IndexByte(sniffed, ';'); semi >= 0 {
			sniffed = sniffed[:semi]
		}
		return sniffed
	}
	return "application/octet-stream"
}

// IsImageMIME reports whether m is an image type every engine accepts.
func IsImageMIME(m string) bool {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif":
		return true
	}
	return false
}
