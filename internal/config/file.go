package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ErrExists is returned by CreateDefault when the target exists and overwrite is off.
var ErrExists = errors.New("config file already exists")

// secretKeys are left out of the written defaults so they come from the environment.
var secretKeys = map[string]bool{
	"client_id":     true,
	"client_secret": true,
	"password":      true,
}

// Defaults returns the default settings as nested sections. Durations are
// rendered as strings ("30s") so the file stays readable.
func Defaults() map[string]any {
	v := viper.New()
	setDefaults(v)
	return normalize(v.AllSettings())
}

func normalize(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, val := range settings {
		switch typed := val.(type) {
		case map[string]any:
			out[k] = normalize(typed)
		case time.Duration:
			out[k] = typed.String()
		default:
			if secretKeys[k] {
				continue
			}
			out[k] = val
		}
	}
	return out
}

// WriteDefaults encodes the default configuration as TOML.
func WriteDefaults(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("# release-radar configuration\n")
	buf.WriteString("# Credentials are read from RSPOTIFY_CLIENT_ID / RSPOTIFY_CLIENT_SECRET\n")
	buf.WriteString("# or RADAR_AUTH_CLIENT_ID / RADAR_AUTH_CLIENT_SECRET (a .env file works too).\n\n")

	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(Defaults()); err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// CreateDefault writes the default configuration to path, creating parent
// directories as needed.
func CreateDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w at %s (use --overwrite to replace it)", ErrExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteDefaults(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
