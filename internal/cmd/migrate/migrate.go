// Package migrate はマイグレーションだけを適用するサブコマンド。
package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/nao1215/crmpipeline/internal/config"
	"github.com/nao1215/crmpipeline/internal/database"
)

// Command はmigrateサブコマンドを返す。
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "データベースのマイグレーションを適用する",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ApplyLogLevel()

			db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info("マイグレーションを適用します", "driver", cfg.DatabaseDriver)
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info("マイグレーションが完了しました")
			return nil
		},
	}
}
