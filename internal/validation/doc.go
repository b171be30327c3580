// Package validation checks bucket names, object keys and object attributes
// before a writer is created, so that malformed input fails fast instead of
// after a multipart session has been opened.
package validation
