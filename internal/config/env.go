package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ProjectEnvFile is read from the working directory.
const ProjectEnvFile = ".salestalk.env"

// LoadEnvFiles loads the project env file and then the global one into the
// process environment. Variables already set are never overwritten, so the
// real environment wins, then the project file, then the global file.
// Missing files are skipped; malformed ones are reported.
func LoadEnvFiles() error {
	return loadEnvFiles(ProjectEnvFile, GlobalEnvPath())
}

func loadEnvFiles(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			errs = append(errs, fmt.Errorf("loading env file %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// GlobalEnvPath returns the path to the global salestalk env file.
func GlobalEnvPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "salestalk", "env")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "salestalk", "env")
}
