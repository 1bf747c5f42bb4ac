// Package main is the orate command line interface: long-form text to
// speech through the OpenAI audio API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/orate/internal/cache"
	"github.com/dgnsrekt/orate/internal/ffmpeg"
	"github.com/dgnsrekt/orate/internal/history"
	"github.com/dgnsrekt/orate/internal/keys"
	"github.com/dgnsrekt/orate/internal/openai"
	"github.com/dgnsrekt/orate/internal/player"
	"github.com/dgnsrekt/orate/internal/sidecar"
	"github.com/dgnsrekt/orate/internal/synth"
	"github.com/dgnsrekt/orate/internal/textload"
	"github.com/dgnsrekt/orate/ui"
)

const appName = "orate"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	scope      = gap.NewScope(gap.User, appName)

	rootCmd = &cobra.Command{
		Use:   "orate [SOURCE]",
		Short: "Turn long text into a single audio file",
		Long: paragraph(fmt.Sprintf(
			"\nOrate reads text from a file, markdown document, or stdin, splits it into "+
				"API-sized chunks, synthesizes each chunk through the OpenAI speech API, and "+
				"%s them into one seamless audio file.", keyword("merges"))),
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			closer, err := setupLog()
			if err != nil {
				return err
			}
			logCloser = closer
			return nil
		},
		RunE: execute,
	}

	logCloser = func() error { return nil }
)

// envOverrides are ORATE_* variables that have no flag, applied after
// viper settles the rest.
type envOverrides struct {
	BaseURL string `env:"ORATE_API_BASE_URL"`
	Debug   bool   `env:"ORATE_DEBUG"`
}

// jobOptions is everything one run needs after flags, config file,
// and environment are resolved.
type jobOptions struct {
	cfg     synth.Config
	params  synth.Params
	out     string
	source  string
	noCache bool
	play    bool
	quiet   bool
	rpm     int
	timeout time.Duration
	baseURL string
}

// resolveOptions folds viper state and ORATE_* overrides into one
// options struct and validates it.
func resolveOptions() (jobOptions, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return jobOptions{}, fmt.Errorf("parse environment: %w", err)
	}
	if overrides.Debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg := synth.Config{
		ChunkSize:      viper.GetInt("chunk-size"),
		Concurrency:    viper.GetInt("parallel"),
		MaxAttempts:    viper.GetInt("max-attempts"),
		RetryBaseDelay: viper.GetDuration("retry-delay"),
		RateLimitDelay: viper.GetDuration("rate-limit-delay"),
		MaxDelay:       viper.GetDuration("max-delay"),
		Output: synth.OutputSpec{
			SampleRate: viper.GetInt("sample-rate"),
			Channels:   viper.GetInt("channels"),
			Bitrate:    viper.GetString("bitrate"),
		},
		KeepChunks: viper.GetBool("keep-chunks"),
	}
	if cfg.Concurrency > synth.MaxConcurrency {
		log.Warn("parallelism clamped", "requested", cfg.Concurrency, "max", synth.MaxConcurrency)
		cfg.Concurrency = synth.MaxConcurrency
	}
	if err := cfg.Validate(); err != nil {
		return jobOptions{}, err
	}

	params := synth.Params{
		Model:        viper.GetString("model"),
		Voice:        viper.GetString("voice"),
		Format:       viper.GetString("format"),
		Speed:        viper.GetFloat64("speed"),
		Instructions: viper.GetString("instructions"),
	}
	if err := openai.ValidateParams(params); err != nil {
		return jobOptions{}, err
	}

	return jobOptions{
		cfg:     cfg,
		params:  params,
		out:     viper.GetString("out"),
		noCache: viper.GetBool("no-cache"),
		play:    viper.GetBool("play"),
		quiet:   viper.GetBool("quiet"),
		rpm:     viper.GetInt("rpm"),
		timeout: viper.GetDuration("timeout"),
		baseURL: overrides.BaseURL,
	}, nil
}

// stdinIsPipe reports whether stdin carries piped input.
func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("stat stdin: %w", err)
	}
	return stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0, nil
}

func execute(_ *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}

	source := "-"
	if len(args) == 1 {
		source = args[0]
	} else {
		piped, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if !piped {
			return errors.New("no input: pass a file path or pipe text to stdin")
		}
	}
	opts.source = source

	text, err := textload.Load(source)
	if err != nil {
		return err
	}

	if opts.out == "" {
		opts.out = defaultOutputPath(source, opts.params.Format)
	}

	return runJob(opts, text)
}

// defaultOutputPath derives the output file name from the input when
// --out is not given.
func defaultOutputPath(source, format string) string {
	if source == "-" {
		return "speech." + format
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(filepath.Dir(source), base+"."+format)
}

// runJob assembles the pipeline's collaborators and drives one
// synthesis job to completion.
func runJob(opts jobOptions, text string) error {
	started := time.Now()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	keyStore, err := newKeyStore()
	if err != nil {
		return err
	}
	apiKey, keySource, err := keyStore.Resolve()
	if err != nil {
		return fmt.Errorf("%w (set %s or run `orate keys set`)", err, keys.EnvVar)
	}
	log.Debug("api key resolved", "source", keySource)

	client, err := openai.New(openai.Config{
		APIKey:  apiKey,
		BaseURL: opts.baseURL,
		Timeout: opts.timeout,
		RPM:     opts.rpm,
	})
	if err != nil {
		return err
	}

	merger := ffmpeg.New(opts.cfg.Output)

	pipeOpts := []synth.Option{
		synth.WithRecorder(sidecar.New(appName, version())),
	}

	if !opts.noCache {
		if chunkCache := openChunkCache(); chunkCache != nil {
			defer chunkCache.Close()
			pipeOpts = append(pipeOpts, synth.WithCache(chunkCache))
		}
	}

	interactive := ui.IsInteractive() && !opts.quiet

	var (
		res    *synth.Result
		runErr error
	)
	if interactive {
		prog := ui.NewProgram(opts.out, cancel)
		obs := ui.NewTeaObserver(prog)
		pipeOpts = append(pipeOpts, synth.WithObserver(obs))

		pipeline, err := synth.New(opts.cfg, opts.params, client, merger, pipeOpts...)
		if err != nil {
			return err
		}

		go func() {
			res, runErr = pipeline.Run(ctx, text, opts.out)
			// Done quits the program; the result fields are settled
			// before the send, so reading them after Run returns is
			// ordered.
			obs.Done(res, runErr)
		}()
		if _, err := prog.Run(); err != nil {
			return fmt.Errorf("progress display failed: %w", err)
		}
	} else {
		pipeOpts = append(pipeOpts, synth.WithObserver(ui.NewLogObserver(log.Default())))
		pipeline, err := synth.New(opts.cfg, opts.params, client, merger, pipeOpts...)
		if err != nil {
			return err
		}
		res, runErr = pipeline.Run(ctx, text, opts.out)
	}

	recordHistory(opts, res, runErr, started)

	if runErr != nil {
		return runErr
	}
	if res.Chunks == 0 {
		return nil
	}

	if opts.play {
		if err := playResult(ctx, opts.out); err != nil {
			log.Warn("playback skipped", "err", err)
		}
	}
	return nil
}

// playResult plays the finished file through the system audio device.
func playResult(ctx context.Context, path string) error {
	p := player.New()
	return p.Play(ctx, path)
}

// newKeyStore builds the key store rooted at the user data directory.
func newKeyStore() (*keys.Store, error) {
	dirs, err := scope.DataDirs()
	if err != nil {
		return nil, fmt.Errorf("locate data directory: %w", err)
	}
	if len(dirs) == 0 {
		return nil, errors.New("no data directory available")
	}
	return keys.NewStore(dirs[0]), nil
}

// openChunkCache opens the chunk audio cache, returning nil when the
// cache directory is unusable; a broken cache never blocks a job.
func openChunkCache() *cache.Cache {
	dir, err := scope.CacheDir()
	if err != nil {
		log.Debug("chunk cache disabled", "err", err)
		return nil
	}
	c, err := cache.Open(filepath.Join(dir, "chunks"), 0)
	if err != nil {
		log.Debug("chunk cache disabled", "err", err)
		return nil
	}
	return c
}

// recordHistory appends the job outcome to the local history
// database, best effort.
func recordHistory(opts jobOptions, res *synth.Result, runErr error, started time.Time) {
	path, err := scope.DataPath("history.db")
	if err != nil {
		log.Debug("history not recorded", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, path)
	if err != nil {
		log.Debug("history not recorded", "err", err)
		return
	}
	defer store.Close()

	row := history.Row{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Input:      inputSummary(opts.source),
		OutputPath: opts.out,
		Model:      opts.params.Model,
		Voice:      opts.params.Voice,
		Format:     opts.params.Format,
		Speed:      opts.params.Speed,
		Status:     history.StatusDone,
	}
	if res != nil {
		row.ID = res.JobID
		row.Chunks = res.Chunks
		row.Attempts = res.Attempts
		row.Bytes = res.BytesWritten
		if res.Warning != nil {
			row.Status = history.StatusDegraded
		}
	}
	if runErr != nil {
		row.Status = history.StatusFailed
		row.Error = runErr.Error()
	}
	if row.ID == "" {
		row.ID = fmt.Sprintf("job-%d", started.UnixNano())
	}
	if err := store.Add(ctx, row); err != nil {
		log.Debug("history not recorded", "err", err)
	}
}

// inputSummary names the input source for history without storing the
// text itself.
func inputSummary(source string) string {
	if source == "-" {
		return "stdin"
	}
	return filepath.Base(source)
}

// version returns the release version or a development placeholder.
func version() string {
	if Version == "" {
		return "unknown (built from source)"
	}
	return Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = logCloser()
		os.Exit(1)
	}
	_ = logCloser()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	rootCmd.Version = version()
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "log errors only")
	rootCmd.PersistentFlags().String("log-file", "", "also log to this file (rotated)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = rootCmd.PersistentFlags().MarkHidden("debug")

	fl := rootCmd.Flags()
	fl.StringP("out", "o", "", "output audio path (default: input name with the format extension)")
	fl.StringP("model", "m", "gpt-4o-mini-tts", "speech model")
	fl.StringP("voice", "v", "alloy", "voice")
	fl.StringP("format", "f", "mp3", "output format (mp3, opus, aac, flac, wav, pcm)")
	fl.Float64P("speed", "s", 1.0, "speech speed, 0.25 to 4.0")
	fl.StringP("instructions", "i", "", "voice instructions (gpt-4o-mini-tts only)")
	fl.IntP("parallel", "p", 1, "chunks synthesized concurrently, 1 to 8")
	fl.Int("max-attempts", synth.DefaultMaxAttempts, "attempts per chunk before the job fails")
	fl.Duration("retry-delay", synth.DefaultRetryBaseDelay, "base backoff delay for transient failures")
	fl.Duration("rate-limit-delay", synth.DefaultRateLimitDelay, "base backoff delay for rate limits without a server hint")
	fl.Duration("max-delay", synth.DefaultMaxDelay, "backoff delay cap")
	fl.Int("chunk-size", synth.MaxChunkSize, "maximum characters per synthesis request")
	fl.Bool("keep-chunks", false, "keep intermediate chunk files after the run")
	fl.Bool("no-cache", false, "bypass the chunk audio cache")
	fl.Bool("play", false, "play the result after a successful run (mp3 only)")
	fl.Int("rpm", 0, "client-side request budget per minute, 0 to disable")
	fl.Duration("timeout", openai.DefaultTimeout, "per-request timeout")
	fl.Int("sample-rate", 48000, "merged output sample rate")
	fl.Int("channels", 2, "merged output channel count")
	fl.String("bitrate", "192k", "merged output bitrate (lossy formats)")

	for _, name := range []string{
		"quiet", "log-file", "debug",
	} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	for _, name := range []string{
		"out", "model", "voice", "format", "speed", "instructions",
		"parallel", "max-attempts", "retry-delay", "rate-limit-delay",
		"max-delay", "chunk-size", "keep-chunks", "no-cache", "play",
		"rpm", "timeout", "sample-rate", "channels", "bitrate",
	} {
		_ = viper.BindPFlag(name, fl.Lookup(name))
	}

	rootCmd.AddCommand(configCmd, keysCmd, voicesCmd, historyCmd, manCmd)
}

// tryLoadConfigFromDefaultPlaces reads orate.yml from the user config
// directories, plus ORATE_* environment overrides.
func tryLoadConfigFromDefaultPlaces() {
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find the configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}
	if c := os.Getenv("ORATE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], appName+".yml")
}
