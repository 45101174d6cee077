// Package storage uploads recordings and shared files.
package storage

import (
	"mime"

	"github.com/google/uuid"
)

// objectName is a fresh random name carrying the extension of contentType.
func objectName(contentType string) string {
	name := uuid.NewString()
	switch contentType {
	case "video/x-matroska":
		return name + ".mkv"
	case "video/webm", "audio/webm":
		return name + ".webm"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return name + exts[0]
	}
	return name + ".bin"
}
