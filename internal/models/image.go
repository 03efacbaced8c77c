package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ImageRef is a self-contained data URI (data:<mime>;base64,<payload>).
// The zero value means no image.
type ImageRef string

// NewImageRef encodes raw image bytes as a data URI.
func NewImageRef(mimeType string, data []byte) ImageRef {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return ImageRef("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

func (r ImageRef) IsZero() bool {
	return r == ""
}

func (r ImageRef) String() string {
	return string(r)
}

// Decode splits the data URI back into mime type and bytes.
func (r ImageRef) Decode() (string, []byte, error) {
	if r.IsZero() {
		return "", nil, errors.New("empty image reference")
	}
	rest, ok := strings.CutPrefix(string(r), "data:")
	if !ok {
		return "", nil, errors.New("image reference is not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("image reference has no payload")
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("image reference encoding %q is not base64", header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return mimeType, data, nil
}

// ImageExtension returns the file extension for an image mime type, defaulting to .png.
func ImageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
