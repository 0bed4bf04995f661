package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecrec"
	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/blobstore/minio"
	"github.com/hupe1980/vecrec/blobstore/s3"
	"github.com/hupe1980/vecrec/index/hnsw"
	"github.com/hupe1980/vecrec/persistence"
	"github.com/hupe1980/vecrec/resource"
)

// Config is the YAML configuration of the CLI.
type Config struct {
	// Dir is the local artifact directory, used when no remote store is set.
	Dir string `yaml:"dir"`

	S3    *S3Config    `yaml:"s3,omitempty"`
	MinIO *MinIOConfig `yaml:"minio,omitempty"`

	Compression string `yaml:"compression"`
	LogLevel    string `yaml:"log_level"`

	Exact       ExactConfig       `yaml:"exact"`
	Approximate ApproximateConfig `yaml:"approximate"`
	Resources   ResourceConfig    `yaml:"resources"`

	// K is the default number of recommendations.
	K int `yaml:"k"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

type ExactConfig struct {
	LeafSize int `yaml:"leaf_size"`
}

type ApproximateConfig struct {
	M              int   `yaml:"m"`
	EFConstruction int   `yaml:"ef_construction"`
	EFSearch       int   `yaml:"ef_search"`
	CapacityMargin int   `yaml:"capacity_margin"`
	Seed           int64 `yaml:"seed"`
}

type ResourceConfig struct {
	MaxConcurrentQueries int64 `yaml:"max_concurrent_queries"`
	IOLimitBytesPerSec   int64 `yaml:"io_limit_bytes_per_sec"`
}

// DefaultConfig mirrors the library defaults.
func DefaultConfig() Config {
	return Config{
		Dir:         "./data",
		Compression: persistence.CompressionZSTD.String(),
		LogLevel:    "info",
		Exact:       ExactConfig{LeafSize: 40},
		Approximate: ApproximateConfig{
			M:              hnsw.DefaultM,
			EFConstruction: hnsw.DefaultEFConstruction,
			EFSearch:       hnsw.DefaultEFSearch,
			CapacityMargin: hnsw.DefaultCapacityMargin,
			Seed:           hnsw.DefaultSeed,
		},
		K: 5,
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel)))
	return l, err
}

func (c Config) blobStore(ctx context.Context) (blobstore.BlobStore, error) {
	switch {
	case c.S3 != nil && c.MinIO != nil:
		return nil, fmt.Errorf("configure either s3 or minio, not both")
	case c.S3 != nil:
		store, err := s3.NewStoreFromDefaultConfig(ctx, c.S3.Region, c.S3.Bucket, c.S3.Prefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	case c.MinIO != nil:
		m := c.MinIO
		store, err := minio.Dial(m.Endpoint, m.AccessKey, m.SecretKey, m.Secure, m.Bucket, m.Prefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return blobstore.NewLocalStore(c.Dir), nil
	}
}

// Options translates the configuration into DB options.
func (c Config) Options(ctx context.Context) ([]vecrec.Option, error) {
	level, err := c.level()
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	comp, err := persistence.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	store, err := c.blobStore(ctx)
	if err != nil {
		return nil, err
	}

	a := c.Approximate
	return []vecrec.Option{
		vecrec.WithBlobStore(store),
		vecrec.WithLogger(vecrec.NewTextLogger(level)),
		vecrec.WithCompression(comp),
		vecrec.WithLeafSize(c.Exact.LeafSize),
		vecrec.WithHNSW(func(o *hnsw.Options) {
			o.M = a.M
			o.EFConstruction = a.EFConstruction
			o.EFSearch = a.EFSearch
			o.CapacityMargin = a.CapacityMargin
			o.Seed = a.Seed
		}),
		vecrec.WithEFSearch(a.EFSearch),
		vecrec.WithResourceConfig(resource.Config{
			MaxConcurrentQueries: c.Resources.MaxConcurrentQueries,
			IOLimitBytesPerSec:   c.Resources.IOLimitBytesPerSec,
		}),
	}, nil
}
