package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"
)

const (
	defaultNetwork = "mainnet"
	defaultDir     = "era1"
)

// config is the download configuration. It is read from the optional TOML
// file and then overridden by flags set on the command line.
type config struct {
	Network     string   `toml:"network"`
	Dir         string   `toml:"dir"`
	Mirrors     []string `toml:"mirrors"`
	Concurrency int      `toml:"concurrency"`
	Retries     *int     `toml:"retries"`
	Timeout     duration `toml:"timeout"`
	Limit       int      `toml:"limit"`
	UserAgent   string   `toml:"user_agent"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// loadConfig decodes path. Unknown keys are rejected so typos surface.
func loadConfig(path string) (config, error) {
	var cfg config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// resolveConfig merges the config file named by the global flag with the
// command's flags.
func resolveConfig(ctx *cli.Context) (config, error) {
	cfg := config{Network: defaultNetwork, Dir: defaultDir}
	if path := ctx.Path(configFlag.Name); path != "" {
		file, err := loadConfig(path)
		if err != nil {
			return config{}, err
		}
		cfg = merge(cfg, file)
	}
	if ctx.IsSet(networkFlag.Name) {
		cfg.Network = ctx.String(networkFlag.Name)
	}
	if ctx.IsSet(dirFlag.Name) {
		cfg.Dir = ctx.Path(dirFlag.Name)
	}
	if ctx.IsSet(mirrorFlag.Name) {
		cfg.Mirrors = ctx.StringSlice(mirrorFlag.Name)
	}
	if ctx.IsSet(concurrencyFlag.Name) {
		cfg.Concurrency = ctx.Int(concurrencyFlag.Name)
	}
	if ctx.IsSet(retriesFlag.Name) {
		n := ctx.Int(retriesFlag.Name)
		cfg.Retries = &n
	}
	if ctx.IsSet(timeoutFlag.Name) {
		cfg.Timeout.Duration = ctx.Duration(timeoutFlag.Name)
	}
	if ctx.IsSet(limitFlag.Name) {
		cfg.Limit = ctx.Int(limitFlag.Name)
	}
	return cfg, nil
}

// merge overlays the non-zero fields of over onto base.
func merge(base, over config) config {
	if over.Network != "" {
		base.Network = over.Network
	}
	if over.Dir != "" {
		base.Dir = over.Dir
	}
	if len(over.Mirrors) > 0 {
		base.Mirrors = over.Mirrors
	}
	if over.Concurrency != 0 {
		base.Concurrency = over.Concurrency
	}
	if over.Retries != nil {
		base.Retries = over.Retries
	}
	if over.Timeout.Duration != 0 {
		base.Timeout = over.Timeout
	}
	if over.Limit != 0 {
		base.Limit = over.Limit
	}
	if over.UserAgent != "" {
		base.UserAgent = over.UserAgent
	}
	return base
}
