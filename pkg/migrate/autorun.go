package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on API start, but only in the
// dev environment with CAUTELA_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	source, err := Source("", true)
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, source)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	reports, err := runner.Run(ctx, CommandUp, "")
	if err != nil {
		return err
	}
	for _, rep := range reports {
		logg.Info(logg.WithFields(ctx, map[string]any{"version": rep.Version, "path": rep.Path, "took": rep.Duration}), "migration applied")
	}
	logg.Info(logg.WithField(ctx, "applied", len(reports)), "dev auto-migrate finished")
	return nil
}
