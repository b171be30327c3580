package cli

import (
	"fmt"
	"path"
	"strings"
)

const scheme = "s3://"

// Target is a destination given as s3://bucket/key. A key that is empty or
// ends in a slash is a prefix under which sources keep their names.
type Target struct {
	Bucket string
	Key    string
}

// ParseTarget parses an s3:// URL.
func ParseTarget(raw string) (Target, error) {
	rest, ok := strings.CutPrefix(raw, scheme)
	if !ok {
		return Target{}, fmt.Errorf("destination %q must start with %s", raw, scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Target{}, fmt.Errorf("destination %q has no bucket", raw)
	}
	return Target{Bucket: bucket, Key: key}, nil
}

// IsPrefix reports whether the target names a prefix rather than an object.
func (t Target) IsPrefix() bool {
	return t.Key == "" || strings.HasSuffix(t.Key, "/")
}

// ObjectKey returns the key for a source whose path relative to its root is
// rel. For an object target rel is ignored.
func (t Target) ObjectKey(rel string) string {
	if !t.IsPrefix() {
		return t.Key
	}
	return t.Key + strings.TrimPrefix(path.Clean("/"+rel), "/")
}

func (t Target) String() string {
	return scheme + t.Bucket + "/" + t.Key
}
