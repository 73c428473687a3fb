package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/engine"
	"github.com/mrdg/rack/seq"
)

// channelConfig describes a channel created at startup.
type channelConfig struct {
	Name       string `yaml:"name"`
	Instrument string `yaml:"instrument"`
}

type config struct {
	Tempo      float64         `yaml:"tempo"`
	Output     string          `yaml:"output"`
	BufferSize int             `yaml:"buffer_size"`
	Lookahead  time.Duration   `yaml:"lookahead"`
	MeterDecay time.Duration   `yaml:"meter_decay"`
	Tracks     int             `yaml:"tracks"`
	Steps      int             `yaml:"steps"`
	MasterGain float64         `yaml:"master_gain"`
	User       string          `yaml:"user"`
	Projects   string          `yaml:"projects"`
	LogLevel   string          `yaml:"log_level"`
	Channels   []channelConfig `yaml:"channels"`
}

const (
	outputPortaudio = "portaudio"
	outputOto       = "oto"
)

func defaultConfig() config {
	opts := engine.DefaultOptions()
	return config{
		Tempo:      opts.Tempo,
		Output:     outputPortaudio,
		BufferSize: audio.BufferSize,
		Lookahead:  opts.Lookahead,
		MeterDecay: opts.MeterDecay,
		Tracks:     opts.Tracks,
		Steps:      opts.Steps,
		MasterGain: opts.MasterGain,
		User:       "default",
		Projects:   "projects",
		LogLevel:   "info",
	}
}

// readConfig decodes YAML from r on top of the defaults.
func readConfig(r io.Reader) (config, error) {
	cfg := defaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if err != nil {
		return config{}, err
	}
	defer f.Close()
	return readConfig(f)
}

func (c config) validate() error {
	var errs []error
	switch c.Output {
	case outputPortaudio, outputOto:
	default:
		errs = append(errs, fmt.Errorf("unknown output %q", c.Output))
	}
	if c.BufferSize <= 0 || c.BufferSize > audio.MaxBlock {
		errs = append(errs, fmt.Errorf("buffer size out of range: %d", c.BufferSize))
	}
	if c.Steps <= 0 {
		errs = append(errs, fmt.Errorf("invalid step count: %d", c.Steps))
	}
	if c.Tracks < 0 {
		errs = append(errs, fmt.Errorf("invalid track count: %d", c.Tracks))
	}
	if c.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("negative lookahead: %v", c.Lookahead))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c config) engineOptions(logger *log.Logger) engine.Options {
	return engine.Options{
		Tempo:      seq.ClampTempo(c.Tempo),
		Lookahead:  c.Lookahead,
		MeterDecay: c.MeterDecay,
		Tracks:     c.Tracks,
		Steps:      c.Steps,
		MasterGain: c.MasterGain,
		Logger:     logger,
	}
}

type cliOptions struct {
	configPath string
	load       bool
	run        string
	bounce     string
	ticks      int
	debug      bool
}

// parseArgs parses the command line. Values read from -config are overridden
// by flags given explicitly.
func parseArgs(args []string) (config, cliOptions, error) {
	var (
		opts  cliOptions
		flags = defaultConfig()
		fs    = flag.NewFlagSet("rack", flag.ContinueOnError)
	)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file")
	fs.BoolVar(&opts.load, "load", false, "load the latest saved project of -user")
	fs.StringVar(&opts.run, "run", "", "file with commands to run at startup")
	fs.StringVar(&opts.bounce, "bounce", "", "render offline to this WAV file and exit")
	fs.IntVar(&opts.ticks, "ticks", 64, "number of sixteenth notes to render with -bounce")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	fs.Float64Var(&flags.Tempo, "bpm", flags.Tempo, "tempo in beats per minute")
	fs.StringVar(&flags.Output, "output", flags.Output, "audio output: portaudio or oto")
	fs.IntVar(&flags.BufferSize, "buffer", flags.BufferSize, "audio buffer size in frames")
	fs.DurationVar(&flags.Lookahead, "lookahead", flags.Lookahead, "scheduling lookahead")
	fs.IntVar(&flags.Tracks, "tracks", flags.Tracks, "number of mixer tracks")
	fs.IntVar(&flags.Steps, "steps", flags.Steps, "default pattern length")
	fs.StringVar(&flags.User, "user", flags.User, "user name for saved projects")
	fs.StringVar(&flags.Projects, "projects", flags.Projects, "project directory")

	if err := fs.Parse(args); err != nil {
		return config{}, opts, err
	}

	cfg := defaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = loadConfig(opts.configPath); err != nil {
			return cfg, opts, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bpm":
			cfg.Tempo = flags.Tempo
		case "output":
			cfg.Output = flags.Output
		case "buffer":
			cfg.BufferSize = flags.BufferSize
		case "lookahead":
			cfg.Lookahead = flags.Lookahead
		case "tracks":
			cfg.Tracks = flags.Tracks
		case "steps":
			cfg.Steps = flags.Steps
		case "user":
			cfg.User = flags.User
		case "projects":
			cfg.Projects = flags.Projects
		}
	})
	if opts.debug {
		cfg.LogLevel = "debug"
	}
	if opts.bounce != "" && opts.ticks <= 0 {
		return cfg, opts, fmt.Errorf("invalid tick count: %d", opts.ticks)
	}
	return cfg, opts, cfg.validate()
}
