package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type serverConfig struct {
	Addr       string `env:"SFC_ADDR" envDefault:":8080"`
	ConfigDir  string `env:"SFC_CONFIGS" envDefault:"./configs"`
	DataDir    string `env:"SFC_DATA" envDefault:"./data"`
	TuningPath string `env:"SFC_TUNING"`
	// IndexBackend is sqlite or none.
	IndexBackend string `env:"SFC_INDEX_BACKEND" envDefault:"sqlite"`
	DisableLogs  bool   `env:"SFC_DISABLE_TRANSCRIPTS"`

	EnableAdmin bool `env:"SFC_ENABLE_ADMIN_HTTP" envDefault:"true"`
	EnablePprof bool `env:"SFC_ENABLE_PPROF_HTTP"`
}

// parseConfig reads the environment first; flags given on the command line
// win over it.
func parseConfig(fs *flag.FlagSet, args []string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&cfg.IndexBackend, "index", cfg.IndexBackend, "game index backend: sqlite|none")
	fs.BoolVar(&cfg.DisableLogs, "disable_transcripts", cfg.DisableLogs, "do not write zstd game transcripts")
	if err := fs.Parse(args); err != nil {
		return serverConfig{}, err
	}

	cfg.TuningPath = strings.TrimSpace(cfg.TuningPath)
	if cfg.TuningPath == "" {
		cfg.TuningPath = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.IndexBackend)) {
	case "", "none", "off", "disabled":
		cfg.IndexBackend = "none"
	case "sqlite":
		cfg.IndexBackend = "sqlite"
	default:
		return serverConfig{}, fmt.Errorf("unsupported index backend: %s", cfg.IndexBackend)
	}
	return cfg, nil
}
