package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file when present. Existing environment variables win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		Logger.Debug("no .env file loaded, using process environment")
	}
}

// Credential returns the value of the first non-empty environment variable in
// names. It is looked up on every call so a key added after startup is seen.
func Credential(names ...string) (string, bool) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	return "", false
}
