package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/engine"
	"github.com/mrdg/rack/project"
	"github.com/mrdg/rack/seq"
)

func main() {
	cfg, opts, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "rack",
		ReportTimestamp: true,
		Level:           level,
	})

	eng := engine.New(cfg.engineOptions(logger.WithPrefix("engine")))
	defer eng.Close()

	env := &env{
		engine:   eng,
		store:    project.NewFileStore(cfg.Projects, logger.WithPrefix("store")),
		user:     cfg.User,
		resolver: engine.ResolverFunc(resolveInstrument),
		log:      logger.WithPrefix("repl"),
	}

	if err := setup(env, cfg, opts); err != nil {
		logger.Fatal("setup failed", "err", err)
	}

	if opts.bounce != "" {
		if err := bounceFile(eng, opts.bounce, opts.ticks); err != nil {
			logger.Fatal("bounce failed", "file", opts.bounce, "err", err)
		}
		logger.Info("bounced", "file", opts.bounce, "ticks", opts.ticks)
		return
	}

	out, err := newOutput(cfg, eng)
	if err != nil {
		logger.Fatal("can't open audio output", "output", cfg.Output, "err", err)
	}
	defer out.Close()
	if err := out.Start(); err != nil {
		logger.Fatal("can't start audio output", "output", cfg.Output, "err", err)
	}
	logger.Info("audio started", "output", cfg.Output, "buffer", cfg.BufferSize, "rate", audio.SampleRate)

	if err := repl(env); err != nil {
		logger.Error("repl", "err", err)
	}
}

// setup creates the configured channels, loads the saved project and runs the
// startup commands, in that order.
func setup(env *env, cfg config, opts cliOptions) error {
	for _, ch := range cfg.Channels {
		spec, err := env.resolver.Resolve(instrumentRef(ch.Instrument))
		if err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		if _, err := env.engine.AddChannel(ch.Name, spec); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
	}
	if opts.load {
		err := env.engine.Load(context.Background(), env.store, env.user, env.resolver)
		if errors.Is(err, project.ErrNotFound) {
			env.log.Warn("no saved project", "user", env.user)
		} else if err != nil {
			return err
		}
	}
	if opts.run != "" {
		f, err := os.Open(opts.run)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := runScript(env, f); err != nil {
			return fmt.Errorf("%s: %w", opts.run, err)
		}
	}
	return nil
}

// runScript evaluates r line by line. Lines starting with // are skipped.
func runScript(env *env, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if _, err := env.eval(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}

func newOutput(cfg config, eng *engine.Engine) (audio.Output, error) {
	if cfg.Output == outputOto {
		out, err := audio.NewOtoOutput(eng, cfg.BufferSize)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	sink, err := audio.NewSink(eng, cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// bounceTail is rendered after the last tick so released voices can ring out.
const bounceTail = audio.SampleRate

// bounce plays ticks sixteenth notes from the start and returns the rendered
// audio including the release tail.
func bounce(eng *engine.Engine, ticks int) (left, right []float32) {
	eng.Stop()
	eng.Play()
	frames := int(float64(ticks) * seq.Interval(eng.Tempo()) * audio.SampleRate)
	left, right = eng.Render(frames)
	eng.Stop()
	tl, tr := eng.Render(bounceTail)
	return append(left, tl...), append(right, tr...)
}

func bounceFile(eng *engine.Engine, path string, ticks int) error {
	left, right := bounce(eng, ticks)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.WriteWav(f, left, right); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
