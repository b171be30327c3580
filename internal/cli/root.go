// Package cli implements the s3pipe command line tool, which streams local
// files or standard input into an object store.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	s3io "github.com/hubject/aws-s3-io"
	"github.com/hubject/aws-s3-io/s3types"
)

// clientFactory builds the client used by commands. Tests replace it to run
// against an in-memory store.
type clientFactory func(ctx context.Context, cfg Config, logger *slog.Logger) (*s3io.Client, error)

type app struct {
	configPath string
	flags      Config
	newClient  clientFactory
}

// Execute runs the s3pipe root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd returns the s3pipe root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultClient)
}

func newRootCmd(newClient clientFactory) *cobra.Command {
	a := &app{flags: DefaultConfig(), newClient: newClient}

	root := &cobra.Command{
		Use:   "s3pipe",
		Short: "Stream data into S3 with bounded memory",
		Long: "s3pipe uploads files or standard input to S3 and S3-compatible stores.\n" +
			"Data is streamed through two fixed-size buffers, so memory use does not\n" +
			"depend on the size of the input.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&a.flags.Backend, "backend", a.flags.Backend, "Store client: aws or minio")
	flags.StringVar(&a.flags.Endpoint, "endpoint", "", "Custom endpoint URL, e.g. http://localhost:9000")
	flags.StringVar(&a.flags.Region, "region", "", "Region of the bucket")
	flags.BoolVar(&a.flags.PathStyle, "path-style", false, "Use path-style bucket addressing")
	flags.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "Log every part at debug level")

	root.AddCommand(newCpCmd(a))
	return root
}

// config merges the configuration file with the flags set on cmd.
func (a *app) config(cmd *cobra.Command) (Config, error) {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return cfg, err
	}

	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("backend", func() { cfg.Backend = a.flags.Backend })
	set("endpoint", func() { cfg.Endpoint = a.flags.Endpoint })
	set("region", func() { cfg.Region = a.flags.Region })
	set("path-style", func() { cfg.PathStyle = a.flags.PathStyle })
	set("verbose", func() { cfg.Verbose = a.flags.Verbose })
	set("cache-size", func() { cfg.CacheSize = a.flags.CacheSize })
	set("checksum", func() { cfg.Checksum = a.flags.Checksum })
	set("content-type", func() { cfg.ContentType = a.flags.ContentType })
	set("concurrency", func() { cfg.Concurrency = a.flags.Concurrency })
	set("zstd", func() { cfg.Zstd = a.flags.Zstd })

	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func defaultClient(ctx context.Context, cfg Config, logger *slog.Logger) (*s3io.Client, error) {
	return s3io.New(ctx,
		s3io.WithBackend(s3types.Backend(cfg.Backend)),
		s3io.WithEndpoint(cfg.Endpoint),
		s3io.WithRegion(cfg.Region),
		s3io.WithForcePathStyle(cfg.PathStyle),
		s3io.WithConcurrency(cfg.Concurrency),
		s3io.WithLogger(logger),
	)
}
