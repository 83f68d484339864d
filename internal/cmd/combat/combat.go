// Package combat parses combat command flags and launches the combat runtime.
package combat

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/veilbound/companion/internal/platform/cmd"
	combatapp "github.com/veilbound/companion/internal/services/combat/app"
)

// Config holds combat command configuration.
type Config struct {
	HTTPAddr     string        `env:"VEILBOUND_COMBAT_HTTP_ADDR" envDefault:":8080"`
	DatabasePath string        `env:"VEILBOUND_COMBAT_DB_PATH" envDefault:"combat.db"`
	RedisAddr    string        `env:"VEILBOUND_REDIS_ADDR"`
	SyncDebounce time.Duration `env:"VEILBOUND_COMBAT_SYNC_DEBOUNCE" envDefault:"800ms"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The combat HTTP listen address")
	fs.StringVar(&cfg.DatabasePath, "db-path", cfg.DatabasePath, "The combat SQLite database path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "The optional redis address for multi-instance feed relay")
	fs.DurationVar(&cfg.SyncDebounce, "sync-debounce", cfg.SyncDebounce, "The mirror push debounce window")

	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the combat runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCombat, func(ctx context.Context) error {
		a, err := combatapp.New(ctx, combatapp.Config{
			HTTPAddr:     cfg.HTTPAddr,
			DatabasePath: cfg.DatabasePath,
			RedisAddr:    cfg.RedisAddr,
			SyncDebounce: cfg.SyncDebounce,
		})
		if err != nil {
			return err
		}
		return a.Run(ctx)
	})
}
