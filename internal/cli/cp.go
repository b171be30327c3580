package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	s3io "github.com/hubject/aws-s3-io"
	"github.com/hubject/aws-s3-io/s3types"
)

const (
	stdinSource     = "-"
	zstdExtension   = ".zst"
	zstdContentType = "application/zstd"
)

// source is one input. rel is the name kept under a prefix target.
type source struct {
	path string
	rel  string
}

func newCpCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp <source>... s3://bucket/key",
		Short: "Upload files or standard input",
		Long: "Upload one or more sources. A source is a file, a doublestar glob such as\n" +
			"'logs/**/*.json', or '-' for standard input. With several sources the\n" +
			"destination must be a prefix ending in '/'.",
		Example: "  s3pipe cp backup.tar s3://archive/2024/backup.tar\n" +
			"  pg_dump db | s3pipe cp --zstd - s3://archive/db.sql\n" +
			"  s3pipe cp 'logs/**/*.log' s3://logs/host-1/",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCp(cmd, args[:len(args)-1], args[len(args)-1])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&a.flags.CacheSize, "cache-size", a.flags.CacheSize, "Buffer memory per upload, e.g. 64MiB")
	flags.StringVar(&a.flags.Checksum, "checksum", a.flags.Checksum, "Part checksum: md5, sha256, crc32c or none")
	flags.StringVar(&a.flags.ContentType, "content-type", "", "Content type; detected from the data when empty")
	flags.IntVarP(&a.flags.Concurrency, "concurrency", "c", a.flags.Concurrency, "Number of sources uploaded at once")
	flags.BoolVar(&a.flags.Zstd, "zstd", false, "Compress with zstd and append "+zstdExtension+" to the key")

	return cmd
}

func (a *app) runCp(cmd *cobra.Command, args []string, dest string) error {
	ctx := cmd.Context()

	cfg, err := a.config(cmd)
	if err != nil {
		return err
	}
	target, err := ParseTarget(dest)
	if err != nil {
		return err
	}
	sources, err := expandSources(args)
	if err != nil {
		return err
	}
	if len(sources) > 1 && !target.IsPrefix() {
		return fmt.Errorf("%d sources need a destination prefix ending in '/', got %s", len(sources), target)
	}

	client, err := a.newClient(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.Verbose))
	if err != nil {
		return err
	}
	opts, err := writerOptions(cfg)
	if err != nil {
		return err
	}

	var results []*s3types.UploadResult
	if cfg.Zstd || hasStdin(sources) {
		results, err = a.streamAll(ctx, cmd.InOrStdin(), client, cfg, target, sources, opts)
	} else {
		results, err = uploadFiles(ctx, client, target, sources, opts)
	}

	out := cmd.OutOrStdout()
	for i, res := range results {
		if res != nil {
			printResult(out, sources[i].path, res)
		}
	}
	return err
}

func writerOptions(cfg Config) ([]s3types.WriterOption, error) {
	cache, err := cfg.CacheBytes()
	if err != nil {
		return nil, err
	}
	alg, enabled, err := cfg.ChecksumAlgorithm()
	if err != nil {
		return nil, err
	}

	opts := []s3types.WriterOption{s3io.WithCacheSize(cache), s3io.WithChecksum(enabled)}
	if enabled {
		opts = append(opts, s3io.WithChecksumAlgorithm(alg))
	}
	switch {
	case cfg.ContentType != "":
		opts = append(opts, s3io.WithContentType(cfg.ContentType))
	case cfg.Zstd:
		opts = append(opts, s3io.WithContentType(zstdContentType))
	}
	return opts, nil
}

func uploadFiles(
	ctx context.Context,
	client *s3io.Client,
	target Target,
	sources []source,
	opts []s3types.WriterOption,
) ([]*s3types.UploadResult, error) {
	files := make([]s3types.FileUpload, 0, len(sources))
	for _, src := range sources {
		abs, err := filepath.Abs(src.path)
		if err != nil {
			return nil, err
		}
		files = append(files, s3types.FileUpload{Path: abs, Key: target.ObjectKey(src.rel)})
	}
	return client.UploadFiles(ctx, target.Bucket, files, opts...)
}

func (a *app) streamAll(
	ctx context.Context,
	stdin io.Reader,
	client *s3io.Client,
	cfg Config,
	target Target,
	sources []source,
	opts []s3types.WriterOption,
) ([]*s3types.UploadResult, error) {
	results := make([]*s3types.UploadResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			key := target.ObjectKey(src.rel)
			if cfg.Zstd {
				key += zstdExtension
			}

			res, err := streamSource(gctx, stdin, client, src, target.Bucket, key, cfg.Zstd, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", src.path, err)
			}
			results[i] = res
			return nil
		})
	}
	return results, g.Wait()
}

func streamSource(
	ctx context.Context,
	stdin io.Reader,
	client *s3io.Client,
	src source,
	bucket, key string,
	compress bool,
	opts []s3types.WriterOption,
) (*s3types.UploadResult, error) {
	r := stdin
	if src.path != stdinSource {
		abs, err := filepath.Abs(src.path)
		if err != nil {
			return nil, err
		}
		f, err := client.Filesystem().Open(abs)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	if !compress {
		return client.Upload(ctx, bucket, key, r, opts...)
	}

	w, err := client.NewWriter(ctx, bucket, key, opts...)
	if err != nil {
		return nil, err
	}
	if err := compressTo(w, r); err != nil {
		return nil, errors.Join(err, w.Abort())
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return w.Result(), nil
}

func compressTo(w io.Writer, r io.Reader) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return nil
}

func hasStdin(sources []source) bool {
	for _, s := range sources {
		if s.path == stdinSource {
			return true
		}
	}
	return false
}

// expandSources resolves globs on the local disk into files. Each file's rel is its path below
// the glob's static prefix, so 'logs/**/*.log' keeps the directory layout.
func expandSources(args []string) ([]source, error) {
	var out []source
	stdin := false

	for _, arg := range args {
		if arg == stdinSource {
			if stdin {
				return nil, errors.New("standard input can only be given once")
			}
			stdin = true
			out = append(out, source{path: stdinSource, rel: "stdin"})
			continue
		}

		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}

		base := globBase(arg)
		found := 0
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				continue
			}

			rel := filepath.Base(m)
			if base != "" {
				if r, err := filepath.Rel(base, m); err == nil {
					rel = r
				}
			}
			out = append(out, source{path: m, rel: filepath.ToSlash(rel)})
			found++
		}
		if found == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
	}
	return out, nil
}

// globBase returns the directory part of pattern before its first wildcard,
// or "" when pattern has no wildcard.
func globBase(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return ""
	}
	dir := filepath.Dir(pattern[:i] + "x")
	return filepath.Clean(dir)
}

func printResult(w io.Writer, src string, res *s3types.UploadResult) {
	mode := "single put"
	if res.Multipart {
		mode = fmt.Sprintf("%d parts", res.Parts)
	}
	_, _ = fmt.Fprintf(w, "%s -> s3://%s/%s (%s, %s, %s)\n",
		src, res.Bucket, res.Key, units.HumanSize(float64(res.Size)), mode, res.Duration.Round(time.Millisecond))
}
