// Package filehandler provides local image file validation, naming, and
// metadata extraction for the processing pipelines.
package filehandler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxImageBytes is the per-file upload size cap (10 MB).
const MaxImageBytes = 10 * 1024 * 1024

// SupportedImageExtensions defines the file extensions accepted for upload,
// mapped to their MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// unsafeNameChars matches every character that is stripped out of an upload
// path component to prevent path traversal and key collisions on exotic names.
var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// IsImage reports whether the extension (with leading dot, any case) is a
// supported image format.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// MIMEType returns the MIME type for a supported image extension.
func MIMEType(ext string) (string, error) {
	mime, ok := SupportedImageExtensions[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("unsupported image format: %s", ext)
	}
	return mime, nil
}

// ValidateImage checks extension and size against the upload limits.
func ValidateImage(name string, size int64) error {
	ext := filepath.Ext(name)
	if !IsImage(ext) {
		return fmt.Errorf("file is not a supported image: %s", name)
	}
	if size > MaxImageBytes {
		return fmt.Errorf("file exceeds the 10MB size limit: %s", name)
	}
	return nil
}

// SanitizeName replaces every character outside [a-zA-Z0-9._-] with an
// underscore, making the name safe for use as a storage key component.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(filepath.Base(name), "_")
}

// ReplaceExt swaps the extension of name for newExt (with leading dot).
// A name with no recognized extension gets newExt appended.
func ReplaceExt(name, newExt string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name + newExt
	}
	return strings.TrimSuffix(name, ext) + newExt
}
