package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const DefaultEndpoint = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"

// Display backends accepted by DISPLAY_BACKEND.
const (
	BackendMemory  = "memory"
	BackendDataURL = "dataurl"
	BackendS3      = "s3"
)

// Config holds all configuration for the application
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	Endpoint   string `env:"HUGGING_FACE_ENDPOINT" envDefault:"https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"`
	Token      string `env:"HUGGING_FACE_TOKEN"`
	TokenParam string `env:"HUGGING_FACE_TOKEN_PARAM"`

	DisplayBackend string        `env:"DISPLAY_BACKEND" envDefault:"memory"`
	Bucket         string        `env:"BUCKET"`
	BucketPrefix   string        `env:"BUCKET_PREFIX" envDefault:"generated/"`
	PresignTTL     time.Duration `env:"PRESIGN_TTL" envDefault:"15m"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DisplayBackend {
	case BackendMemory, BackendDataURL:
	case BackendS3:
		if c.Bucket == "" {
			return errors.New("BUCKET is required when DISPLAY_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown DISPLAY_BACKEND %q", c.DisplayBackend)
	}
	if c.Endpoint == "" {
		return errors.New("HUGGING_FACE_ENDPOINT must not be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

// HasToken reports whether a bearer token can be resolved at all.
func (c *Config) HasToken() bool {
	return c.Token != "" || c.TokenParam != ""
}
