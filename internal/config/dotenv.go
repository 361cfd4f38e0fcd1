package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment without overriding variables that are already
// set. Missing files are skipped.
func LoadDotEnv(log *slog.Logger, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
		log.Debug("config: loaded dotenv file", slog.String("path", f))
	}
	return nil
}
