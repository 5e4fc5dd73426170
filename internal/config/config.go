package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kozaktomas/frame-dedup/internal/example"
	"github.com/kozaktomas/frame-dedup/internal/storage"
)

//go:embed schemas.yaml
var schemasYAML []byte

// DefaultSchema is the schema used when none is named.
const DefaultSchema = "detection"

type Config struct {
	Dedup   DedupConfig
	Log     LogConfig
	Storage StorageConfig
}

type DedupConfig struct {
	Threshold int    // minimum Hamming distance for a record to count as new (default 1)
	Hasher    string // phash, dhash or goimagehash (default phash)
	Index     string // linear or bucket (default linear)
}

type LogConfig struct {
	Level  string // defaults to info
	Format string // text or json, defaults to text
}

type StorageConfig struct {
	Endpoint  string // S3-compatible endpoint, host[:port]
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool // defaults to true
}

// Options converts the storage config for storage.NewOpener.
func (c StorageConfig) Options() storage.Options {
	return storage.Options{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Region:    c.Region,
		UseSSL:    c.UseSSL,
	}
}

// envInt reads an environment variable and parses it as an integer of at
// least minVal. Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal, minVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= minVal {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Dedup: DedupConfig{
			Threshold: envInt("DEDUP_THRESHOLD", 1, 0),
			Hasher:    envString("DEDUP_HASHER", "phash"),
			Index:     envString("DEDUP_INDEX", "linear"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Region:    os.Getenv("S3_REGION"),
			UseSSL:    envBool("S3_USE_SSL", true),
		},
	}
}

// Schemas returns the built-in feature schemas.
func Schemas() map[string]*example.Schema {
	schemas, err := example.ParseSchemas(schemasYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to parse embedded schemas.yaml: " + err.Error())
	}
	return schemas
}

// LoadSchema returns the named schema from file, or from the built-in
// schemas when file is empty. An empty name means DefaultSchema.
func LoadSchema(name, file string) (*example.Schema, error) {
	if name == "" {
		name = DefaultSchema
	}

	var schemas map[string]*example.Schema
	if file == "" {
		schemas = Schemas()
	} else {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		if schemas, err = example.ParseSchemas(data); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	schema, ok := schemas[name]
	if !ok {
		names := make([]string, 0, len(schemas))
		for n := range schemas {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown schema %q (available: %s)", name, strings.Join(names, ", "))
	}
	return schema, nil
}
