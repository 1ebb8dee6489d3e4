// Package config reads the receiver settings from the environment and an
// optional .env file. Command line flags are applied on top by the commands.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/0w0mewo/localsendgs/internal/crypto"
	"github.com/0w0mewo/localsendgs/internal/identity"
	"github.com/0w0mewo/localsendgs/internal/localsend"
	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	lsutils "github.com/0w0mewo/localsendgs/internal/localsend/utils"
	"github.com/0w0mewo/localsendgs/internal/policy"
	"github.com/joho/godotenv"
)

const (
	envPrefix     = "LOCALSENDGS_"
	pinDigits     = 6
	defaultDirApp = "localsendgs"
)

type Config struct {
	Alias       string
	DeviceModel string
	DeviceType  string

	StorageDir     string
	Port           int
	MulticastGroup string
	MulticastPort  int

	PIN             string
	AcceptPolicy    policy.AcceptPolicy
	PinPolicy       policy.PinPolicy
	QuickSavePolicy policy.QuickSavePolicy

	ConfigDir       string
	KeyFile         string
	CertFile        string
	FingerprintFile string
	CertTool        identity.Tool

	Favorites     *Favorites
	EventsAddr    string
	ClientTimeout time.Duration

	// PINGenerated is set when Finalize had to make up a PIN.
	PINGenerated bool
}

// Load reads .env (envFile, or ./.env when empty and present) and then the
// LOCALSENDGS_* environment variables. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Alias:          readEnv("ALIAS", ""),
		DeviceModel:    readEnv("DEVICE_MODEL", constants.DeviceModel),
		DeviceType:     readEnv("DEVICE_TYPE", constants.DeviceType),
		StorageDir:     readEnv("STORAGE_DIR", ""),
		MulticastGroup: readEnv("MULTICAST_GROUP", constants.DefaultMulticastGroup),
		PIN:            readEnv("PIN", ""),
		ConfigDir:      readEnv("CONFIG_DIR", ""),
		KeyFile:        readEnv("KEY_FILE", ""),
		CertFile:       readEnv("CERT_FILE", ""),
		EventsAddr:     readEnv("EVENTS_ADDR", ""),
	}
	cfg.FingerprintFile = readEnv("FINGERPRINT_FILE", "")

	var err error
	if cfg.Port, err = parseInt("PORT", constants.DefaultPort); err != nil {
		return nil, err
	}
	if cfg.MulticastPort, err = parseInt("MULTICAST_PORT", constants.DefaultMulticastPort); err != nil {
		return nil, err
	}
	if cfg.ClientTimeout, err = parseDuration("CLIENT_TIMEOUT", localsend.DefaultClientTimeout); err != nil {
		return nil, err
	}
	if cfg.AcceptPolicy, err = policy.ParseAcceptPolicy(readEnv("ACCEPT_POLICY", policy.AcceptEveryone.String())); err != nil {
		return nil, err
	}
	if cfg.PinPolicy, err = policy.ParsePinPolicy(readEnv("PIN_POLICY", policy.PinNever.String())); err != nil {
		return nil, err
	}
	if cfg.QuickSavePolicy, err = policy.ParseQuickSavePolicy(readEnv("QUICKSAVE_POLICY", policy.QuickSaveNever.String())); err != nil {
		return nil, err
	}
	if cfg.CertTool, err = identity.ParseTool(readEnv("CERT_TOOL", "")); err != nil {
		return nil, err
	}

	cfg.Favorites = NewFavorites(parseList("FAVORITES")...)
	if path := readEnv("FAVORITES_FILE", ""); path != "" {
		if err := cfg.Favorites.LoadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Finalize fills what was left empty and checks the result.
func (cfg *Config) Finalize() error {
	if cfg.Alias == "" {
		cfg.Alias = lsutils.GenAlias()
	}

	if cfg.StorageDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("no storage directory and no home directory: %w", err)
		}
		cfg.StorageDir = filepath.Join(home, "Downloads")
	}

	if cfg.ConfigDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("no config directory: %w", err)
		}
		cfg.ConfigDir = filepath.Join(base, defaultDirApp)
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(cfg.ConfigDir, "key.pem")
	}
	if cfg.CertFile == "" {
		cfg.CertFile = filepath.Join(cfg.ConfigDir, "cert.pem")
	}
	if cfg.FingerprintFile == "" {
		cfg.FingerprintFile = filepath.Join(cfg.ConfigDir, "fingerprint")
	}

	if cfg.PIN == "" && cfg.PinPolicy != policy.PinNever {
		pin, err := crypto.NewPIN(pinDigits)
		if err != nil {
			return err
		}
		cfg.PIN = pin
		cfg.PINGenerated = true
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MulticastPort <= 0 || cfg.MulticastPort > 65535 {
		return fmt.Errorf("invalid multicast port %d", cfg.MulticastPort)
	}
	if cfg.Favorites == nil {
		cfg.Favorites = NewFavorites()
	}

	return nil
}

func (cfg *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("alias", cfg.Alias),
		slog.String("storage", cfg.StorageDir),
		slog.Int("port", cfg.Port),
		slog.String("multicast", fmt.Sprintf("%s:%d", cfg.MulticastGroup, cfg.MulticastPort)),
		slog.String("accept", cfg.AcceptPolicy.String()),
		slog.String("pin", cfg.PinPolicy.String()),
		slog.String("quicksave", cfg.QuickSavePolicy.String()),
		slog.Int("favorites", cfg.Favorites.Len()),
	)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key string) []string {
	val := readEnv(key, "")
	if val == "" {
		return nil
	}

	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt(key string, def int) (int, error) {
	v := readEnv(key, "")
	if v == "" {
		return def, nil
	}

	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return parsed, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := readEnv(key, "")
	if v == "" {
		return def, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return parsed, nil
}
