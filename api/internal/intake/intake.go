// Package intake turns whatever image form a client sent into a types.ImagePayload.
package intake

import (
	"regexp"
	"strings"

	"medlist/api/internal/ocr/types"
	"medlist/api/internal/util"
)

// DefaultMediaType is assumed for bare base64 without a data URL envelope.
const DefaultMediaType = "image/png"

var dataURLRe = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// Input carries the raw image forms in priority order.
type Input struct {
	// File is a binary upload; FileMIME is its declared content type.
	File     []byte
	FileMIME string
	// ImageData is a data URL or bare base64 string.
	ImageData string
}

// Empty reports whether no image form is present at all.
func (in Input) Empty() bool {
	return len(in.File) == 0 && strings.TrimSpace(in.ImageData) == ""
}

// Normalize returns the payload or an invalid-input error. It never calls out.
func Normalize(in Input) (types.ImagePayload, error) {
	if in.Empty() {
		return types.ImagePayload{}, types.ErrNoImage
	}
	if len(in.File) > 0 {
		return types.ImagePayload{
			Bytes:     in.File,
			MediaType: util.PickMIME(in.FileMIME, in.File),
		}, nil
	}

	s := strings.TrimSpace(in.ImageData)
	mediaType, encoded := DefaultMediaType, s
	if m := dataURLRe.FindStringSubmatch(s); m != nil {
		mediaType, encoded = m[1], m[2]
	}

	b, err := util.DecodeBase64(encoded)
	if err != nil || len(b) == 0 {
		return types.ImagePayload{}, types.ErrInvalidImage
	}
	return types.ImagePayload{Bytes: b, MediaType: mediaType}, nil
}
