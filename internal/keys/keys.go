// Package keys resolves and stores the OpenAI API key. Sources are
// tried in a fixed order: environment variable, OS keyring, and an
// obfuscated fallback file for systems without a keyring backend.
//
// The file fallback is XOR obfuscation, not encryption. It only keeps
// the key out of casual directory listings; anyone with the binary
// can recover it.
package keys

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// EnvVar is the environment variable consulted first.
const EnvVar = "OPENAI_API_KEY"

// Keyring coordinates for the stored secret.
const (
	service     = "orate"
	keyringUser = "OPENAI_API_KEY"
)

// keyFileName is the obfuscated fallback under the app data directory.
const keyFileName = "api_key.enc"

// obfuscationPad is the XOR pad for the fallback file.
var obfuscationPad = []byte("orate-api-key-obfuscation-pad")

// ErrNotFound means no source holds a key.
var ErrNotFound = errors.New("no API key configured")

// Source names where a key came from or went to.
type Source string

const (
	SourceEnv     Source = "environment"
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
)

// Store reads and writes the API key across the three sources.
type Store struct {
	filePath string
	getenv   func(string) string
}

// NewStore builds a Store whose fallback file lives in dataDir.
func NewStore(dataDir string) *Store {
	return &Store{
		filePath: filepath.Join(dataDir, keyFileName),
		getenv:   os.Getenv,
	}
}

// Resolve returns the API key from the first source that has one.
func (s *Store) Resolve() (string, Source, error) {
	if key := strings.TrimSpace(s.getenv(EnvVar)); key != "" {
		return key, SourceEnv, nil
	}

	if key, err := keyring.Get(service, keyringUser); err == nil && key != "" {
		return key, SourceKeyring, nil
	}

	key, err := s.readFile()
	if err != nil {
		return "", "", err
	}
	return key, SourceFile, nil
}

// Set stores the key in the OS keyring, falling back to the
// obfuscated file when no keyring backend is available. It reports
// which source now holds the key.
func (s *Store) Set(key string) (Source, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("refusing to store an empty API key")
	}

	if err := keyring.Set(service, keyringUser, key); err == nil {
		return SourceKeyring, nil
	}

	if err := s.writeFile(key); err != nil {
		return "", err
	}
	return SourceFile, nil
}

// Clear removes the key from the keyring and the fallback file. The
// environment variable is the caller's to unset.
func (s *Store) Clear() error {
	kerr := keyring.Delete(service, keyringUser)
	if errors.Is(kerr, keyring.ErrNotFound) {
		kerr = nil
	}
	ferr := os.Remove(s.filePath)
	if ferr != nil && os.IsNotExist(ferr) {
		ferr = nil
	}
	if kerr != nil {
		return fmt.Errorf("clear keyring entry: %w", kerr)
	}
	if ferr != nil {
		return fmt.Errorf("remove key file: %w", ferr)
	}
	return nil
}

// readFile loads and de-obfuscates the fallback file.
func (s *Store) readFile() (string, error) {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read key file: %w", err)
	}
	key, err := deobfuscate(strings.TrimSpace(string(raw)))
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: key file is unreadable", ErrNotFound)
	}
	return key, nil
}

// writeFile obfuscates and stores the key, restricting the file to
// the owner.
func (s *Store) writeFile(key string) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(s.filePath, []byte(obfuscate(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// xorPad applies the repeating obfuscation pad to data in place.
func xorPad(data []byte) {
	for i := range data {
		data[i] ^= obfuscationPad[i%len(obfuscationPad)]
	}
}

// obfuscate encodes key as URL-safe base64 of its XOR with the pad.
func obfuscate(key string) string {
	data := []byte(key)
	xorPad(data)
	return base64.URLEncoding.EncodeToString(data)
}

// deobfuscate reverses obfuscate.
func deobfuscate(encoded string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	xorPad(data)
	return string(data), nil
}

// Redact shortens a key for display, keeping just enough to identify
// it.
func Redact(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
