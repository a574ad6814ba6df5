package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"evovis/internal/ingest"
	"evovis/internal/storage"
)

var configValidate = validator.New()

// fileConfig is the optional YAML file passed with --config. Flags given on
// the command line override it.
type fileConfig struct {
	Store   string         `yaml:"store" validate:"omitempty,oneof=memory sqlite"`
	DBPath  string         `yaml:"db_path"`
	Workers int            `yaml:"workers" validate:"gte=0"`
	Load    ingest.Options `yaml:"load"`
	Watch   watchConfig    `yaml:"watch"`
}

type watchConfig struct {
	DebounceMS  int    `yaml:"debounce_ms" validate:"gte=0"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		Store:   storage.DefaultStoreKind,
		DBPath:  "evovis.db",
		Workers: 4,
		Watch:   watchConfig{DebounceMS: 500},
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return fileConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c fileConfig) validate() error {
	if err := configValidate.Struct(c); err != nil {
		return err
	}
	return c.Load.Validate()
}

func (c fileConfig) debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}
