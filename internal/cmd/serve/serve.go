// Package serve はHTTPサーバーを起動するサブコマンド。
package serve

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/nao1215/crmpipeline/internal/config"
	"github.com/nao1215/crmpipeline/internal/database"
	"github.com/nao1215/crmpipeline/internal/server"
)

// Command はserveサブコマンドを返す。
func Command() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "マイグレーションを適用してHTTP/WebSocketサーバーを起動する",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Sources: cli.EnvVars("PORT"),
				Usage:   "HTTPサーバーの待ち受けポート",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.IsSet("port") {
				cfg.Port = cmd.String("port")
			}
			cfg.ApplyLogLevel()

			db, err := database.OpenAndMigrate(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			s, err := server.New(cfg, db)
			if err != nil {
				return err
			}
			return s.Run(ctx)
		},
	}
}
