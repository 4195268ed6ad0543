// Package session runs one adapter session: it wires the controller's
// command stream into the engine and the engine's event stream into the
// sink, as two independent pipelines sharing only the engine handle.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"battlepipe/internal/annotate"
	"battlepipe/internal/archive"
	"battlepipe/internal/config"
	"battlepipe/internal/engine"
	"battlepipe/internal/inject"
	"battlepipe/internal/procmon"
	"battlepipe/internal/spectate"
	"battlepipe/internal/teams"
	"battlepipe/pkg/linebuf"
)

// procmonInterval is how often engine resource usage is sampled under
// verbose diagnostics.
const procmonInterval = 5 * time.Second

// Session holds the consumers attached to the engine's event stream.
type Session struct {
	cfg   config.Config
	coord *inject.Coordinator
	ann   *annotate.Annotator
	spect *spectate.Server
	arch  *archive.DB
}

// Run executes one adapter run: preflight, engine launch, both
// pipelines, teardown. Preflight failures (configuration, team loading)
// return before any engine work; pipeline failures are collected and
// reported after both directions have drained as far as they can.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s := &Session{cfg: cfg}

	// Team loading is preflight-fatal, scoped to the responsible slot.
	if !cfg.NoInject && len(cfg.Teams) > 0 {
		packed := make(map[string]string, len(cfg.Teams))
		for slot, path := range cfg.Teams {
			team, err := teams.Load(path)
			if err != nil {
				return fmt.Errorf("team for %s: %w", slot, err)
			}
			packed[slot] = team
		}
		s.coord = inject.New(packed)
	}

	seed, err := config.ResolveSeed(cfg.Seed)
	if err != nil {
		return err
	}

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	sink, closeSink, err := openSink(cfg.Output)
	if err != nil {
		return err
	}
	defer closeSink()

	if cfg.Archive != "" {
		db, err := archive.Open(cfg.Archive)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		s.arch = db
	}

	if cfg.Spectate != "" {
		s.spect = spectate.NewServer(cfg.Spectate)
		go s.spect.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.spect.Shutdown(shutdownCtx)
		}()
	}

	// The annotator is only needed when a structured consumer exists;
	// plain mode with no spectators and no archive forwards raw bytes.
	if cfg.Format == config.FormatJSON || s.spect != nil || s.arch != nil {
		s.ann = annotate.New()
	}

	eng, err := engine.Start(engine.Options{
		Path:      cfg.Engine,
		ExtraArgs: cfg.EngineArgs,
		Seed:      seed,
		Verbose:   cfg.EngineVerbose,
		NoCatch:   cfg.NoCatch,
		KeepAlive: cfg.KeepAlive,
		Replay:    cfg.Replay,
		UsePTY:    cfg.PTY,
	})
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()
	slog.Debug("Engine started", "path", cfg.Engine, "pid", eng.PID(), "seed", seed)

	if cfg.Verbose {
		monCtx, cancelMon := context.WithCancel(ctx)
		defer cancelMon()
		go procmon.Watch(monCtx, int32(eng.PID()), procmonInterval)
	}

	// Two pipelines, one per direction. Each owns its own mutable state
	// (splitter, coordinator, annotator); they share only the engine
	// handle, whose read and write sides are independent.
	writeErrCh := make(chan error, 1)
	readErrCh := make(chan error, 1)

	go func() {
		err := s.runWriter(input, eng)
		if err != nil {
			// Tear the engine down so the read pipeline can drain and
			// finish instead of blocking forever.
			_ = eng.Close()
		}
		writeErrCh <- err
	}()

	var rawSink io.Writer
	if cfg.Format == config.FormatPlain {
		rawSink = sink
	}
	go func() {
		readErrCh <- s.runReader(eng.Stdout(), rawSink, sink)
	}()

	writeErr := <-writeErrCh
	readErr := <-readErrCh

	waitErr := eng.Wait()
	if waitErr != nil {
		waitErr = fmt.Errorf("engine exited: %w", waitErr)
	}

	return errors.Join(writeErr, readErr, waitErr)
}

// runWriter forwards the controller stream to the engine, injecting
// synthetic team commands when a coordinator is attached. In passthrough
// mode the stream is copied verbatim.
func (s *Session) runWriter(src io.Reader, eng *engine.Engine) error {
	defer func() {
		if err := eng.EndInput(); err != nil {
			slog.Warn("Failed to signal end of input to engine", "error", err)
		}
	}()

	if s.coord == nil {
		if _, err := io.Copy(eng.Stdin(), src); err != nil {
			return fmt.Errorf("forward controller input: %w", err)
		}
		return nil
	}

	var split linebuf.Splitter
	buf := make([]byte, 8192)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			lines := s.coord.FeedChunk(split.Feed(string(buf[:n])))
			if werr := writeLines(eng.Stdin(), lines); werr != nil {
				return fmt.Errorf("write engine command: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read controller input: %w", err)
		}
	}

	// Final flush and due-check before signaling end of input.
	var final []linebuf.Line
	if tail, ok := split.Flush(); ok {
		final = s.coord.FeedChunk([]linebuf.Line{tail})
	} else {
		final = s.coord.Finish()
	}
	if err := writeLines(eng.Stdin(), final); err != nil {
		return fmt.Errorf("write engine command: %w", err)
	}
	return nil
}

// writeLines writes lines preserving their original terminator state. A
// delimiter is inserted after an unterminated line that is followed by
// another, so a synthetic command is never glued to the stream's tail.
func writeLines(w io.Writer, lines []linebuf.Line) error {
	for i, line := range lines {
		if _, err := io.WriteString(w, line.Text); err != nil {
			return err
		}
		if line.HadNewline || i < len(lines)-1 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// runReader forwards the engine's event stream to the sink. In plain
// mode raw bytes pass through unchanged; structured consumers (NDJSON
// sink, spectators, archive) receive annotated events.
func (s *Session) runReader(src io.Reader, raw, structured io.Writer) error {
	buf := make([]byte, 8192)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if raw != nil {
				if _, werr := raw.Write(buf[:n]); werr != nil {
					return fmt.Errorf("write sink: %w", werr)
				}
			}
			if s.ann != nil {
				if eerr := s.emit(s.ann.Feed(string(buf[:n])), structured); eerr != nil {
					return eerr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read engine output: %w", err)
		}
	}

	if s.ann != nil {
		return s.emit(s.ann.Flush(), structured)
	}
	return nil
}

// emit delivers annotated events to every attached structured consumer.
// Sink and archive write failures are terminal for the read pipeline;
// spectators are best effort.
func (s *Session) emit(events []annotate.Event, structured io.Writer) error {
	for _, ev := range events {
		if s.cfg.Format == config.FormatJSON {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			if _, err := structured.Write(append(data, '\n')); err != nil {
				return fmt.Errorf("write sink: %w", err)
			}
		}
		if s.spect != nil {
			s.spect.Broadcast(ev)
		}
		if s.arch != nil {
			if err := s.arch.Append(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openSink(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
