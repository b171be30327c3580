package objectstore

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when neither content nor name identify the type.
const DefaultContentType = "application/octet-stream"

// sniffLen is how much of the first chunk is inspected.
const sniffLen = 3072

// DetectContentType sniffs the MIME type from the first bytes of an object.
// When the content is not recognized it falls back to the key's extension.
func DetectContentType(key string, head []byte) string {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt != nil && !mt.Is(DefaultContentType) {
			return mt.String()
		}
	}
	return contentTypeFromExtension(key)
}

func contentTypeFromExtension(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
