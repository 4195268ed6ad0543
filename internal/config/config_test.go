package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Engine = "/usr/local/bin/simulator"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_EngineRequired(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, cfg.Validate(), "engine path is required")
}

func TestValidate_UnknownFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Format = "yaml"
	require.ErrorContains(t, cfg.Validate(), `unknown log format "yaml"`)
}

func TestValidate_UnknownSlot(t *testing.T) {
	cfg := validConfig()
	cfg.Teams["p9"] = "team.txt"
	require.ErrorContains(t, cfg.Validate(), `unknown player slot "p9"`)
}

func TestValidate_EmptyTeamPath(t *testing.T) {
	cfg := validConfig()
	cfg.Teams["p1"] = "  "
	require.ErrorContains(t, cfg.Validate(), "team file path for p1 is empty")
}

func TestValidate_NoInjectConflictsWithTeams(t *testing.T) {
	cfg := validConfig()
	cfg.NoInject = true
	cfg.Teams["p1"] = "team.txt"
	require.ErrorContains(t, cfg.Validate(), "cannot be combined with --no-inject")
}

func TestValidate_WhitespaceOutputPath(t *testing.T) {
	cfg := validConfig()
	cfg.Output = "   "
	require.ErrorContains(t, cfg.Validate(), "output path is empty")
}

func TestValidate_InvalidSeed(t *testing.T) {
	cfg := validConfig()
	cfg.Seed = "1,2,three,4"
	require.ErrorContains(t, cfg.Validate(), "is not an integer")
}

func TestResolveSeed_Empty(t *testing.T) {
	seed, err := ResolveSeed("")
	require.NoError(t, err)
	require.Empty(t, seed)
}

func TestResolveSeed_Explicit(t *testing.T) {
	seed, err := ResolveSeed("1,2,3,4")
	require.NoError(t, err)
	require.Equal(t, "1,2,3,4", seed)
}

func TestResolveSeed_RandomIsStablePerProcess(t *testing.T) {
	first, err := ResolveSeed(SeedRandom)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := ResolveSeed(SeedRandom)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battlepipe.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine = "/opt/sim/engine"
format = "json"
seed = "10,20,30,40"
keep_alive = true

[teams]
p1 = "teams/alpha.json"
`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	require.Equal(t, "/opt/sim/engine", cfg.Engine)
	require.Equal(t, FormatJSON, cfg.Format)
	require.Equal(t, "10,20,30,40", cfg.Seed)
	require.True(t, cfg.KeepAlive)
	require.Equal(t, "teams/alpha.json", cfg.Teams["p1"])
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("engine = [unclosed"), 0o600))

	cfg := Default()
	require.ErrorContains(t, cfg.LoadFile(path), "parse config")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BATTLEPIPE_ENGINE", "/env/engine")
	t.Setenv("BATTLEPIPE_FORMAT", "json")
	t.Setenv("BATTLEPIPE_NO_INJECT", "true")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	require.Equal(t, "/env/engine", cfg.Engine)
	require.Equal(t, FormatJSON, cfg.Format)
	require.True(t, cfg.NoInject)
}
