// Package config loads partitioner settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/don7panic/script-partitioner/partitioner"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

type Storage struct {
	// Backend is "s3" or "local".
	Backend string `yaml:"backend"`
	// Bucket is the S3 bucket artifacts are kept in.
	Bucket string `yaml:"bucket,omitempty"`
	// Directory is where the local backend keeps artifacts.
	Directory string `yaml:"directory,omitempty"`
}

type Config struct {
	EntryPoint         string  `yaml:"entry_point"`
	KeyPrefix          string  `yaml:"key_prefix"`
	VersionEnv         string  `yaml:"version_env"`
	TrainingModule     string  `yaml:"training_module"`
	InferenceModule    string  `yaml:"inference_module"`
	Placement          string  `yaml:"placement"`
	StrictDeclarations bool    `yaml:"strict_declarations"`
	Storage            Storage `yaml:"storage"`
	LogLevel           string  `yaml:"log_level"`
	Listen             string  `yaml:"listen"`
	// Trace prints partition spans to stderr.
	Trace bool `yaml:"trace"`
}

func Default() Config {
	return Config{
		EntryPoint:      "predict",
		VersionEnv:      partitioner.DefaultVersionEnv,
		TrainingModule:  partitioner.DefaultTrainingModule,
		InferenceModule: partitioner.DefaultInferenceModule,
		Placement:       partitioner.PlacementInline.String(),
		Storage: Storage{
			Backend: BackendS3,
			Bucket:  partitioner.DefaultBucket,
		},
		LogLevel: "info",
		Listen:   ":8080",
	}
}

// UnmarshalYAML decodes over the current values and normalizes the
// enumerated settings. It does not validate: the environment may still
// fill in what the file leaves out.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	raw := plain(*c)
	if err := node.Decode(&raw); err != nil {
		return err
	}
	cfg := Config(raw)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.Placement = strings.ToLower(strings.TrimSpace(cfg.Placement))
	*c = cfg
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required for the s3 backend", ErrInvalidConfig)
		}
	case BackendLocal:
		if c.Storage.Directory == "" {
			return fmt.Errorf("%w: storage.directory is required for the local backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if _, err := parsePlacement(c.Placement); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.VersionEnv == "" {
		return fmt.Errorf("%w: version_env is empty", ErrInvalidConfig)
	}
	return nil
}

// Load reads the YAML file at path over the defaults. The result is
// validated by WithEnv.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WithEnv overlays SCRIPTSPLIT_* environment variables on c and validates
// the result. When DEPLOY_ENVIRONMENT is set and no bucket was chosen, the
// default bucket is suffixed with it.
func WithEnv(c Config) (Config, error) {
	c.EntryPoint = env.Str("SCRIPTSPLIT_ENTRY_POINT", c.EntryPoint)
	c.KeyPrefix = env.Str("SCRIPTSPLIT_KEY_PREFIX", c.KeyPrefix)
	c.VersionEnv = env.Str("SCRIPTSPLIT_VERSION_ENV", c.VersionEnv)
	c.TrainingModule = env.Str("SCRIPTSPLIT_TRAINING_MODULE", c.TrainingModule)
	c.InferenceModule = env.Str("SCRIPTSPLIT_INFERENCE_MODULE", c.InferenceModule)
	c.Placement = env.Str("SCRIPTSPLIT_PLACEMENT", c.Placement)
	c.Storage.Backend = env.Str("SCRIPTSPLIT_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Directory = env.Str("SCRIPTSPLIT_ARTIFACT_DIR", c.Storage.Directory)
	c.LogLevel = env.Str("SCRIPTSPLIT_LOG_LEVEL", c.LogLevel)
	c.Listen = env.Str("SCRIPTSPLIT_LISTEN", c.Listen)
	if env.Has("SCRIPTSPLIT_STRICT") {
		c.StrictDeclarations = env.Bool("SCRIPTSPLIT_STRICT")
	}
	if env.Has("SCRIPTSPLIT_TRACE") {
		c.Trace = env.Bool("SCRIPTSPLIT_TRACE")
	}

	switch {
	case env.Has("SCRIPTSPLIT_BUCKET"):
		c.Storage.Bucket = env.Str("SCRIPTSPLIT_BUCKET")
	case env.Has("DEPLOY_ENVIRONMENT") && c.Storage.Bucket == partitioner.DefaultBucket:
		c.Storage.Bucket = partitioner.DefaultBucket + "-" + env.Str("DEPLOY_ENVIRONMENT")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

func parsePlacement(s string) (partitioner.Placement, error) {
	switch strings.ToLower(s) {
	case "", "inline":
		return partitioner.PlacementInline, nil
	case "end":
		return partitioner.PlacementEnd, nil
	}
	return 0, fmt.Errorf("%w: unknown placement %q", ErrInvalidConfig, s)
}

// PartitionerOptions converts c into partitioner options.
func (c Config) PartitionerOptions() ([]partitioner.Option, error) {
	placement, err := parsePlacement(c.Placement)
	if err != nil {
		return nil, err
	}

	var storage partitioner.Storage
	switch c.Storage.Backend {
	case BackendS3:
		storage = partitioner.S3Storage{Bucket: c.Storage.Bucket}
	case BackendLocal:
		storage = partitioner.LocalStorage{Dir: c.Storage.Directory}
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	return []partitioner.Option{
		partitioner.WithKeyPrefix(c.KeyPrefix),
		partitioner.WithVersionEnv(c.VersionEnv),
		partitioner.WithModuleRemap(c.TrainingModule, c.InferenceModule),
		partitioner.WithPlacement(placement),
		partitioner.WithStrictDeclarations(c.StrictDeclarations),
		partitioner.WithStorage(storage),
	}, nil
}
