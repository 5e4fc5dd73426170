package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/frame-dedup/internal/example"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DEDUP_THRESHOLD", "DEDUP_HASHER", "DEDUP_INDEX", "LOG_LEVEL", "LOG_FORMAT", "S3_USE_SSL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Dedup.Threshold != 1 {
		t.Errorf("expected default threshold 1, got %d", cfg.Dedup.Threshold)
	}
	if cfg.Dedup.Hasher != "phash" {
		t.Errorf("expected default hasher 'phash', got '%s'", cfg.Dedup.Hasher)
	}
	if cfg.Dedup.Index != "linear" {
		t.Errorf("expected default index 'linear', got '%s'", cfg.Dedup.Index)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected info/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if !cfg.Storage.UseSSL {
		t.Error("expected SSL enabled by default")
	}
}

func TestLoad_Threshold(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"5", 5},
		{"0", 0},
		{"65", 65},
		{"-1", 1},
		{"invalid", 1},
		{"", 1},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("DEDUP_THRESHOLD", tt.value)
			if got := Load().Dedup.Threshold; got != tt.want {
				t.Errorf("DEDUP_THRESHOLD=%q: threshold = %d; want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestLoad_StorageConfig(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")
	t.Setenv("S3_REGION", "eu-central-1")
	t.Setenv("S3_USE_SSL", "false")

	opts := Load().Storage.Options()

	if opts.Endpoint != "localhost:9000" {
		t.Errorf("expected endpoint 'localhost:9000', got '%s'", opts.Endpoint)
	}
	if opts.AccessKey != "minio" || opts.SecretKey != "minio123" {
		t.Errorf("unexpected credentials %s/%s", opts.AccessKey, opts.SecretKey)
	}
	if opts.Region != "eu-central-1" {
		t.Errorf("expected region 'eu-central-1', got '%s'", opts.Region)
	}
	if opts.UseSSL {
		t.Error("expected SSL disabled")
	}
}

func TestLoad_InvalidBool(t *testing.T) {
	t.Setenv("S3_USE_SSL", "maybe")

	if !Load().Storage.UseSSL {
		t.Error("expected default SSL setting for invalid input")
	}
}

func TestSchemas_Embedded(t *testing.T) {
	schemas := Schemas()

	for _, name := range []string{"detection", "merge", "image"} {
		s, ok := schemas[name]
		if !ok {
			t.Fatalf("expected schema '%s' to be embedded", name)
		}
		if s.ImageFeature() != example.DefaultImageFeature {
			t.Errorf("schema %s: image feature = %s; want %s", name, s.ImageFeature(), example.DefaultImageFeature)
		}
	}

	if got := len(schemas["detection"].Specs()); got != 12 {
		t.Errorf("detection schema has %d features; want 12", got)
	}
	if got := len(schemas["merge"].Specs()); got != 11 {
		t.Errorf("merge schema has %d features; want 11", got)
	}
}

func TestLoadSchema_Default(t *testing.T) {
	s, err := LoadSchema("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != DefaultSchema {
		t.Errorf("expected schema '%s', got '%s'", DefaultSchema, s.Name())
	}
}

func TestLoadSchema_Unknown(t *testing.T) {
	_, err := LoadSchema("nope", "")
	if err == nil {
		t.Fatal("expected error for unknown schema")
	}
	if !strings.Contains(err.Error(), "detection, image, merge") {
		t.Errorf("expected available schemas in error, got: %v", err)
	}
}

func TestLoadSchema_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	data := "schemas:\n  frames:\n    features:\n      - {name: image/encoded, type: bytes}\n      - {name: frame/id, type: int64}\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSchema("frames", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Specs()) != 2 {
		t.Errorf("expected 2 features, got %d", len(s.Specs()))
	}

	if _, err := LoadSchema("detection", path); err == nil {
		t.Error("expected built-in schemas to be unavailable when a file is given")
	}
}

func TestLoadSchema_MissingFile(t *testing.T) {
	_, err := LoadSchema("", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing schema file")
	}
}
