package enums

import (
	"fmt"
	"strings"
)

// PageFormat is the web image encoding used for transcoded pages.
type PageFormat string

const (
	PageFormatWebP PageFormat = "webp"
	PageFormatJPEG PageFormat = "jpg"
)

func (f PageFormat) String() string {
	return string(f)
}

// Extension returns the file extension without the dot.
func (f PageFormat) Extension() string {
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f PageFormat) ContentType() string {
	switch f {
	case PageFormatJPEG:
		return "image/jpeg"
	default:
		return "image/webp"
	}
}

// ParsePageFormat accepts webp, jpg or jpeg (case-insensitive).
func ParsePageFormat(value string) (PageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "webp":
		return PageFormatWebP, nil
	case "jpg", "jpeg":
		return PageFormatJPEG, nil
	}
	return "", fmt.Errorf("invalid page format %q", value)
}
