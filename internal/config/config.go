// Package config holds the process-level controls for one adapter run
// and validates them before any engine work starts.
//
// Precedence, lowest to highest: built-in defaults, an optional TOML
// config file, BATTLEPIPE_* environment variables, command-line flags.
package config

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Sink formats.
const (
	FormatPlain = "plain" // forward raw engine bytes unchanged
	FormatJSON  = "json"  // one annotated event per line, NDJSON
)

// SeedRandom asks for a seed generated once per process and reused for
// every session the process hosts.
const SeedRandom = "random"

// validSlots is the closed set of player slots a team may be supplied for.
var validSlots = map[string]bool{"p1": true, "p2": true, "p3": true, "p4": true}

// Config is one run's full configuration.
type Config struct {
	Engine     string   `toml:"engine" env:"BATTLEPIPE_ENGINE"`
	EngineArgs []string `toml:"engine_args" env:"BATTLEPIPE_ENGINE_ARGS" envSeparator:","`

	Format string `toml:"format" env:"BATTLEPIPE_FORMAT"`
	Output string `toml:"output" env:"BATTLEPIPE_OUTPUT"`
	Input  string `toml:"input" env:"BATTLEPIPE_INPUT"`

	Seed string `toml:"seed" env:"BATTLEPIPE_SEED"`

	// Teams maps a player slot to a team file path. Slots without an
	// entry stay controller-owned.
	Teams map[string]string `toml:"teams" env:"-"`

	// NoInject forwards the controller stream verbatim. Mutually
	// exclusive with supplying teams.
	NoInject bool `toml:"no_inject" env:"BATTLEPIPE_NO_INJECT"`

	PTY      bool   `toml:"pty" env:"BATTLEPIPE_PTY"`
	Spectate string `toml:"spectate" env:"BATTLEPIPE_SPECTATE"`
	Archive  string `toml:"archive" env:"BATTLEPIPE_ARCHIVE"`

	// Engine behavior toggles, passed through opaquely.
	EngineVerbose bool `toml:"engine_verbose" env:"BATTLEPIPE_ENGINE_VERBOSE"`
	NoCatch       bool `toml:"no_catch" env:"BATTLEPIPE_NO_CATCH"`
	KeepAlive     bool `toml:"keep_alive" env:"BATTLEPIPE_KEEP_ALIVE"`
	Replay        bool `toml:"replay" env:"BATTLEPIPE_REPLAY"`

	Verbose bool `toml:"verbose" env:"BATTLEPIPE_VERBOSE"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Format: FormatPlain,
		Teams:  make(map[string]string),
	}
}

// LoadFile overlays a TOML config file onto c.
func (c *Config) LoadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays BATTLEPIPE_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate checks everything that must be right before a session starts.
// Any error here terminates the process before the engine is launched.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine) == "" {
		return fmt.Errorf("engine path is required")
	}
	if c.Format != FormatPlain && c.Format != FormatJSON {
		return fmt.Errorf("unknown log format %q (want %q or %q)", c.Format, FormatPlain, FormatJSON)
	}
	if c.Output != "" && strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output path is empty")
	}
	if c.Input != "" && strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("input path is empty")
	}
	for slot, path := range c.Teams {
		if !validSlots[slot] {
			return fmt.Errorf("unknown player slot %q", slot)
		}
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("team file path for %s is empty", slot)
		}
	}
	if c.NoInject && len(c.Teams) > 0 {
		return fmt.Errorf("team files cannot be combined with --no-inject")
	}
	if _, err := ResolveSeed(c.Seed); err != nil {
		return err
	}
	return nil
}

// processSeed is generated at most once per process so that every
// session hosted by this process replays identically.
var processSeed struct {
	once  sync.Once
	value string
}

// ResolveSeed turns a seed spec into the concrete value handed to the
// engine. "" means no seed, SeedRandom means the once-per-process value,
// anything else must be comma-separated integers.
func ResolveSeed(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "":
		return "", nil
	case SeedRandom:
		processSeed.once.Do(func() {
			parts := make([]string, 4)
			for i := range parts {
				parts[i] = strconv.Itoa(rand.Intn(0x10000))
			}
			processSeed.value = strings.Join(parts, ",")
		})
		return processSeed.value, nil
	}

	parts := strings.Split(spec, ",")
	for _, part := range parts {
		if _, err := strconv.Atoi(strings.TrimSpace(part)); err != nil {
			return "", fmt.Errorf("invalid seed %q: %q is not an integer", spec, part)
		}
	}
	return spec, nil
}
