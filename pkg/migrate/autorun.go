package migrate

import (
	"context"
	"fmt"

	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db"
	"github.com/quotaclub/settlement/pkg/logger"
)

// MaybeRunDev prepares the schema on boot. In dev with SETTLEMENT_AUTO_MIGRATE
// it applies pending migrations; everywhere else it refuses to start a worker
// against a schema that is behind, since sweeps would write to missing columns.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})

	if cfg.App.IsDev() && cfg.App.AutoMigrate {
		logg.Info(ctx, "applying settlement schema migrations")
		if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
			return err
		}
		logg.Info(ctx, "settlement schema up to date")
		return nil
	}

	pending, err := Pending(ctx, sqlDB, DefaultDir)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("settlement schema is %d migration(s) behind, first pending %d", len(pending), pending[0])
	}
	return nil
}
