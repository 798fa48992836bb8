package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	VaultKey string // passphrase the credential vault derives its key from
	APIKey   string // optional; empty disables API-key auth
	DBPath   string
	LogLevel string

	CollectorInterval time.Duration
	CollectTimeout    time.Duration

	CollectLimit          int
	CollectMinCalls       int64
	CollectMinTotalTimeMs float64
	StoreFullQueryText    bool
}

func Load() (*Config, error) {
	// Try loading .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	key := os.Getenv("PGSCOPE_KEY")
	if len(key) < 16 {
		fmt.Println("PGSCOPE_KEY not found or too short. Generating a new secure key...")
		newKey, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}

		if err := saveKeyToEnv(newKey); err != nil {
			fmt.Printf("Warning: Failed to save generated key to .env: %v\n", err)
		} else {
			fmt.Println("New PGSCOPE_KEY saved to .env file.")
		}
		key = newKey
	}

	return &Config{
		Port:                  envInt("PORT", 8080),
		VaultKey:              key,
		APIKey:                os.Getenv("PGSCOPE_API_KEY"),
		DBPath:                envString("DB_PATH", "pgscope.db"),
		LogLevel:              envString("LOG_LEVEL", "info"),
		CollectorInterval:     time.Duration(envInt("COLLECTOR_INTERVAL_SECONDS", 60)) * time.Second,
		CollectTimeout:        time.Duration(envInt("COLLECT_TIMEOUT_SECONDS", 30)) * time.Second,
		CollectLimit:          envInt("COLLECT_LIMIT", 0),
		CollectMinCalls:       int64(envInt("COLLECT_MIN_CALLS", 0)),
		CollectMinTotalTimeMs: envFloat("COLLECT_MIN_TOTAL_TIME_MS", 0),
		StoreFullQueryText:    envBool("STORE_FULL_QUERY_TEXT", false),
	}, nil
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func generateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// Base64 keeps the key printable for the .env file.
	return base64.StdEncoding.EncodeToString(b), nil
}

func saveKeyToEnv(key string) error {
	filename := ".env"
	content, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return os.WriteFile(filename, []byte(fmt.Sprintf("PGSCOPE_KEY=%s\nPORT=8080\n", key)), 0600)
	} else if err != nil {
		return err
	}

	lines := strings.Split(string(content), "\n")
	found := false
	var out []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "PGSCOPE_KEY=") {
			out = append(out, fmt.Sprintf("PGSCOPE_KEY=%s", key))
			found = true
			continue
		}
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	if !found {
		out = append(out, fmt.Sprintf("PGSCOPE_KEY=%s", key))
	}

	return os.WriteFile(filename, []byte(strings.Join(out, "\n")+"\n"), 0600)
}
