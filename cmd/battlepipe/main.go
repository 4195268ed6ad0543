package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"battlepipe/internal/config"
	"battlepipe/internal/session"
	"battlepipe/internal/teams"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgFile string

	enginePath string
	engineArgs []string
	format     string
	output     string
	input      string
	seed       string
	teamSpecs  []string
	noInject   bool
	usePTY     bool
	spectate   string
	archive    string

	engineVerbose bool
	noCatch       bool
	keepAlive     bool
	replay        bool

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "battlepipe",
	Short: "battlepipe - protocol adapter between a battle controller and a simulator",
	Long: `battlepipe sits between an automated battling controller and a
battle-simulation engine. It forwards the controller's command stream to
the engine, injecting team assignments supplied out of band, and turns
the engine's terse event stream into annotated, structured output.`,
}

var runCmd = &cobra.Command{
	Use:           "run",
	Short:         "Run one adapter session",
	Long:          `Run the adapter: controller commands flow from stdin (or --input) to the engine, engine events flow to stdout (or --output).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verbose)

		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		return session.Run(context.Background(), cfg)
	},
}

var packCmd = &cobra.Command{
	Use:           "pack FILE",
	Short:         "Validate a team file and print its packed form",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verbose)

		packed, err := teams.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Println(packed)
		return nil
	},
}

// buildConfig layers defaults, config file, environment, and flags, in
// that order, then leaves validation to the session preflight.
func buildConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if cfgFile != "" {
		if err := cfg.LoadFile(cfgFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = enginePath
	}
	if flags.Changed("engine-arg") {
		cfg.EngineArgs = engineArgs
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("output") {
		cfg.Output = output
	}
	if flags.Changed("input") {
		cfg.Input = input
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("no-inject") {
		cfg.NoInject = noInject
	}
	if flags.Changed("pty") {
		cfg.PTY = usePTY
	}
	if flags.Changed("spectate") {
		cfg.Spectate = spectate
	}
	if flags.Changed("archive") {
		cfg.Archive = archive
	}
	if flags.Changed("engine-verbose") {
		cfg.EngineVerbose = engineVerbose
	}
	if flags.Changed("no-catch") {
		cfg.NoCatch = noCatch
	}
	if flags.Changed("keep-alive") {
		cfg.KeepAlive = keepAlive
	}
	if flags.Changed("replay") {
		cfg.Replay = replay
	}
	cfg.Verbose = cfg.Verbose || verbose

	for _, spec := range teamSpecs {
		slot, path, found := strings.Cut(spec, "=")
		if !found {
			return cfg, fmt.Errorf("invalid --team %q (want slot=FILE, e.g. p1=team.json)", spec)
		}
		if cfg.Teams == nil {
			cfg.Teams = make(map[string]string)
		}
		cfg.Teams[slot] = path
	}

	return cfg, nil
}

// setupLogging picks the slog handler for diagnostics on stderr: text
// for humans at a terminal, JSON otherwise.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	runCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "TOML config file with defaults for these flags")
	runCmd.Flags().StringVarP(&enginePath, "engine", "e", "", "Path to the battle-simulator binary")
	runCmd.Flags().StringArrayVar(&engineArgs, "engine-arg", nil, "Extra argument passed to the engine verbatim (repeatable)")
	runCmd.Flags().StringVarP(&format, "format", "f", config.FormatPlain, "Sink format: plain (raw engine bytes) or json (annotated NDJSON)")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "Write engine output to this file instead of stdout (truncates)")
	runCmd.Flags().StringVarP(&input, "input", "i", "", "Read controller commands from this file instead of stdin")
	runCmd.Flags().StringVar(&seed, "seed", "", "Engine PRNG seed: comma-separated integers, or 'random' for one generated per process")
	runCmd.Flags().StringArrayVarP(&teamSpecs, "team", "t", nil, "Team file for a slot as slot=FILE (repeatable)")
	runCmd.Flags().BoolVar(&noInject, "no-inject", false, "Forward the controller stream verbatim; no team injection")
	runCmd.Flags().BoolVar(&usePTY, "pty", false, "Run the engine under a pseudo-terminal (for engines that block-buffer pipes)")
	runCmd.Flags().StringVar(&spectate, "spectate", "", "Serve the live event stream to websocket observers on this address")
	runCmd.Flags().StringVar(&archive, "archive", "", "Append annotated events to this sqlite database")
	runCmd.Flags().BoolVar(&engineVerbose, "engine-verbose", false, "Ask the engine for verbose diagnostics")
	runCmd.Flags().BoolVar(&noCatch, "no-catch", false, "Ask the engine not to catch its own errors")
	runCmd.Flags().BoolVar(&keepAlive, "keep-alive", false, "Ask the engine to stay alive after the battle ends")
	runCmd.Flags().BoolVar(&replay, "replay", false, "Ask the engine to annotate output for replays")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug-level adapter diagnostics (includes engine resource sampling)")

	packCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug-level diagnostics")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(packCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
