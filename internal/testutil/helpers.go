package testutil

import (
	"crypto/md5" //nolint:gosec // Content-MD5 is MD5 by definition
	"encoding/base64"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// RandomBytes returns n pseudo-random bytes. The sequence depends only on n,
// so a failing test sees the same payload on every run.
func RandomBytes(n int) []byte {
	rng := rand.New(rand.NewPCG(uint64(n), 0x5eed))
	out := make([]byte, n+7)
	for i := 0; i < n; i += 8 {
		binary.LittleEndian.PutUint64(out[i:], rng.Uint64())
	}
	return out[:n:n]
}

// UniqueKey returns an object key below prefix that no other test uses.
func UniqueKey(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "object-" + uuid.NewString()
}

// UniqueBucket returns a valid bucket name starting with prefix.
func UniqueBucket(prefix string) string {
	prefix = strings.ToLower(strings.ReplaceAll(prefix, "_", "-"))
	name := prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// CalculateMD5 returns the base64 MD5 digest of data, the form S3 expects in
// Content-MD5.
func CalculateMD5(data []byte) string {
	h := md5.Sum(data) //nolint:gosec
	return base64.StdEncoding.EncodeToString(h[:])
}

// ChunkedReader returns at most N bytes per Read.
type ChunkedReader struct {
	R io.Reader
	N int
}

func (c *ChunkedReader) Read(p []byte) (int, error) {
	if len(p) > c.N {
		p = p[:c.N]
	}
	return c.R.Read(p)
}
