package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech model: tts-1, tts-1-hd, gpt-4o-mini-tts
model: "gpt-4o-mini-tts"
# voice: alloy, ash, ballad, coral, echo, fable, onyx, nova, sage, shimmer, verse
voice: "alloy"
# output format: mp3, opus, aac, flac, wav, pcm
format: "mp3"
# speech speed, 0.25 to 4.0
speed: 1.0
# voice instructions (gpt-4o-mini-tts only)
instructions: ""

# chunks synthesized concurrently, 1 to 8. The API rate-limits per
# account; raise this only if your tier allows it.
parallel: 1
# maximum characters per synthesis request
chunk-size: 4096
# attempts per chunk before the job fails
max-attempts: 3
# base backoff delay for transient failures
retry-delay: 5s
# base backoff delay for rate limits without a server hint
rate-limit-delay: 15s
# backoff delay cap
max-delay: 60s
# client-side request budget per minute, 0 to disable
rpm: 0
# per-request timeout
timeout: 60s

# merged output encoding
sample-rate: 48000
channels: 2
bitrate: "192k"

# keep intermediate chunk files after the run
keep-chunks: false
# bypass the chunk audio cache
no-cache: false
# play the result after a successful run (mp3 only)
play: false

# log errors only
quiet: false
# also log to this file (rotated)
log-file: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the orate config file",
	Long:    paragraph(fmt.Sprintf("\n%s the orate config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("orate config\norate config --config path/to/orate.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Orate", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
