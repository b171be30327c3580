package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3io "github.com/hubject/aws-s3-io"
	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/objectstore/memstore"
	"github.com/hubject/aws-s3-io/s3types"
)

var testLimits = s3types.Limits{MinPartSize: 5, MaxPartSize: 10, MaxPutSize: 10, MaxParts: 100}

type cpFixture struct {
	store *memstore.Store
	stdin *strings.Reader
	out   bytes.Buffer
	err   bytes.Buffer
}

func newCpFixture() *cpFixture {
	return &cpFixture{
		store: memstore.New(memstore.WithMinPartSize(testLimits.MinPartSize)),
		stdin: strings.NewReader(""),
	}
}

func (f *cpFixture) run(args ...string) error {
	factory := func(_ context.Context, cfg Config, logger *slog.Logger) (*s3io.Client, error) {
		return s3io.NewWithStore(f.store,
			s3io.WithWriterDefaults(s3io.WithLimits(testLimits)),
			s3io.WithConcurrency(cfg.Concurrency),
			s3io.WithLogger(logger),
		), nil
	}

	cmd := newRootCmd(factory)
	cmd.SetArgs(append([]string{"cp", "--cache-size", "20"}, args...))
	cmd.SetIn(f.stdin)
	cmd.SetOut(&f.out)
	cmd.SetErr(&f.err)
	return cmd.ExecuteContext(context.Background())
}

func (f *cpFixture) object(t *testing.T, key string) *memstore.StoredObject {
	t.Helper()
	obj, ok := f.store.Object("bucket", key)
	require.True(t, ok, "object %s not stored", key)
	return obj
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCp_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	payload := strings.Repeat("0123456789", 2) + "abcde"
	writeFile(t, path, payload)

	f := newCpFixture()
	require.NoError(t, f.run(path, "s3://bucket/backups/data.bin"))

	obj := f.object(t, "backups/data.bin")
	assert.Equal(t, payload, string(obj.Data))
	assert.Equal(t, 3, obj.Parts)
	assert.Contains(t, f.out.String(), "s3://bucket/backups/data.bin")
	assert.Contains(t, f.out.String(), "3 parts")
}

func TestCp_GlobToPrefix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.log"), "first")
	writeFile(t, filepath.Join(dir, "sub", "b.log"), "second")
	writeFile(t, filepath.Join(dir, "c.txt"), "skipped")

	f := newCpFixture()
	require.NoError(t, f.run(filepath.Join(dir, "**", "*.log"), "s3://bucket/logs/"))

	assert.Equal(t, "first", string(f.object(t, "logs/a.log").Data))
	assert.Equal(t, "second", string(f.object(t, "logs/sub/b.log").Data))
	_, ok := f.store.Object("bucket", "logs/c.txt")
	assert.False(t, ok)
	assert.Len(t, f.store.CallsTo(memstore.OpPutObject), 2)
}

func TestCp_StdinZstd(t *testing.T) {
	payload := strings.Repeat("compressible line\n", 200)

	f := newCpFixture()
	f.stdin = strings.NewReader(payload)
	require.NoError(t, f.run("--zstd", "-", "s3://bucket/db.sql"))

	obj := f.object(t, "db.sql.zst")
	assert.Equal(t, "application/zstd", obj.ContentType)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(obj.Data, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, string(plain))
}

func TestCp_Stdin(t *testing.T) {
	f := newCpFixture()
	f.stdin = strings.NewReader("hello")
	require.NoError(t, f.run("--content-type", "text/plain", "-", "s3://bucket/hello.txt"))

	obj := f.object(t, "hello.txt")
	assert.Equal(t, "hello", string(obj.Data))
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Contains(t, f.out.String(), "single put")
}

func TestCp_ConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	writeFile(t, src, "note")
	cfgPath := filepath.Join(dir, "s3pipe.yaml")
	writeFile(t, cfgPath, "checksum: sha256\nconcurrency: 2\n")

	f := newCpFixture()
	require.NoError(t, f.run("--config", cfgPath, src, "s3://bucket/a.txt"))
	puts := f.store.CallsTo(memstore.OpPutObject)
	require.Len(t, puts, 1)
	require.NotNil(t, puts[0].Checksum)
	assert.Equal(t, objectstore.AlgorithmSHA256, puts[0].Checksum.Algorithm)

	require.NoError(t, f.run("--config", cfgPath, "--checksum", "none", src, "s3://bucket/b.txt"))
	puts = f.store.CallsTo(memstore.OpPutObject)
	require.Len(t, puts, 2)
	assert.Nil(t, puts[1].Checksum)
}

func TestCp_Errors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "a")
	writeFile(t, b, "b")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"several sources need prefix", []string{a, b, "s3://bucket/one.txt"}, "need a destination prefix"},
		{"bad destination", []string{a, "bucket/key"}, "must start with s3://"},
		{"no match", []string{filepath.Join(dir, "*.bin"), "s3://bucket/"}, "no files match"},
		{"stdin twice", []string{"-", "-", "s3://bucket/"}, "only be given once"},
		{"bad checksum", []string{"--checksum", "sha1", a, "s3://bucket/a"}, "unknown checksum"},
		{"bad backend", []string{"--backend", "gcs", a, "s3://bucket/a"}, "unknown backend"},
		{"invalid key", []string{a, "s3://bucket/../escape"}, "invalid object key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCpFixture()
			err := f.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), tt.wantErr)
			assert.Empty(t, f.store.CallsTo(memstore.OpPutObject))
		})
	}
}

func TestStreamSource_ReadsClientFilesystem(t *testing.T) {
	fs := memfs.New()
	payload := strings.Repeat("only in memory\n", 20)
	require.NoError(t, util.WriteFile(fs, "/data/in.txt", []byte(payload), 0o600))

	store := memstore.New(memstore.WithMinPartSize(testLimits.MinPartSize))
	client := s3io.NewWithStore(store,
		s3io.WithFilesystem(fs),
		s3io.WithWriterDefaults(s3io.WithLimits(testLimits)),
	)
	opts := []s3types.WriterOption{s3io.WithCacheSize(20)}

	_, err := streamSource(context.Background(), nil, client, source{path: "/data/in.txt"}, "bucket", "in.txt", false, opts)
	require.NoError(t, err)
	_, err = streamSource(context.Background(), nil, client, source{path: "/data/in.txt"}, "bucket", "in.txt.zst", true, opts)
	require.NoError(t, err)

	plainObj, ok := store.Object("bucket", "in.txt")
	require.True(t, ok)
	assert.Equal(t, payload, string(plainObj.Data))

	zObj, ok := store.Object("bucket", "in.txt.zst")
	require.True(t, ok)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(zObj.Data, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, string(plain))

	_, err = streamSource(context.Background(), nil, client, source{path: "/data/missing.txt"}, "bucket", "x", false, opts)
	assert.Error(t, err)
}

func TestGlobBase(t *testing.T) {
	assert.Equal(t, "", globBase("file.txt"))
	assert.Equal(t, ".", globBase("*.log"))
	assert.Equal(t, "logs", globBase("logs/**/*.log"))
	assert.Equal(t, "/var/log", globBase("/var/log/app-?.log"))
	assert.Equal(t, "data", globBase("data/{a,b}/*.csv"))
}
