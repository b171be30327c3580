package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/s3types"
)

// Config is the CLI configuration. It is read from a YAML file and then
// overridden by flags given on the command line.
type Config struct {
	Backend     string `yaml:"backend"`
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	PathStyle   bool   `yaml:"pathStyle"`
	CacheSize   string `yaml:"cacheSize"`
	Checksum    string `yaml:"checksum"`
	ContentType string `yaml:"contentType"`
	Concurrency int    `yaml:"concurrency"`
	Zstd        bool   `yaml:"zstd"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns the configuration used when neither file nor flags
// set a value.
func DefaultConfig() Config {
	return Config{
		Backend:     string(s3types.BackendAWS),
		CacheSize:   units.BytesSize(float64(s3types.DefaultCacheSize)),
		Checksum:    string(objectstore.AlgorithmMD5),
		Concurrency: s3types.DefaultConcurrency,
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be checked by the flag parser.
func (c Config) Validate() error {
	switch s3types.Backend(c.Backend) {
	case s3types.BackendAWS, s3types.BackendMinio:
	default:
		return fmt.Errorf("unknown backend %q, expected aws or minio", c.Backend)
	}
	if _, err := c.CacheBytes(); err != nil {
		return err
	}
	if _, _, err := c.ChecksumAlgorithm(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// CacheBytes parses CacheSize, which accepts both "64MiB" and "64MB" forms.
func (c Config) CacheBytes() (int, error) {
	n, err := units.RAMInBytes(c.CacheSize)
	if err != nil {
		return 0, fmt.Errorf("invalid cache size %q: %w", c.CacheSize, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("cache size must be positive, got %q", c.CacheSize)
	}
	return int(n), nil
}

// ChecksumAlgorithm maps the checksum setting to an algorithm. "none"
// disables checksums.
func (c Config) ChecksumAlgorithm() (objectstore.Algorithm, bool, error) {
	switch alg := objectstore.Algorithm(strings.ToUpper(c.Checksum)); alg {
	case "NONE", "OFF":
		return "", false, nil
	case "", objectstore.AlgorithmMD5:
		return objectstore.AlgorithmMD5, true, nil
	case objectstore.AlgorithmSHA256, objectstore.AlgorithmCRC32C:
		return alg, true, nil
	default:
		return "", false, fmt.Errorf("unknown checksum %q, expected md5, sha256, crc32c or none", c.Checksum)
	}
}
