// Package purge は保持期間スイープを1回だけ実行するサブコマンド。
// 外部のスケジューラから呼び出す運用を想定している。
package purge

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/nao1215/crmpipeline/internal/config"
	"github.com/nao1215/crmpipeline/internal/database"
	"github.com/nao1215/crmpipeline/internal/notification"
)

// Command はpurgeサブコマンドを返す。
func Command() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "指定日数より古い既読通知を削除する",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "days",
				Usage: "保持日数。省略時はNOTIFICATION_RETENTION_DAYS",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ApplyLogLevel()

			days := cfg.RetentionDays
			if cmd.IsSet("days") {
				days = int(cmd.Int("days"))
			}

			db, err := database.OpenAndMigrate(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			deleted, err := notification.NewService(notification.NewSQLStore(db), nil).PurgeOld(ctx, days)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "%d件の既読通知を削除しました\n", deleted)
			return err
		},
	}
}
