package bundle

import (
	"path"
	"strings"
)

// Content types of the objects a publication writes.
const (
	ContentTypeArchive  = "application/zip"
	ContentTypeManifest = "application/json"
	ContentTypePointer  = "text/plain; charset=utf-8"
	contentTypeDefault  = "application/octet-stream"
)

// ContentTypeForFile picks the upload content type from name's extension.
// Extensions are compared case-insensitively.
func ContentTypeForFile(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".zip":
		return ContentTypeArchive
	case ".json":
		return ContentTypeManifest
	case ".txt":
		return ContentTypePointer
	case ".yaml", ".yml":
		return "application/x-yaml"
	}
	return contentTypeDefault
}
