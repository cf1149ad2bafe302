// Package token は開発用のJWTを発行するサブコマンド。
package token

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/nao1215/crmpipeline/internal/config"
	"github.com/nao1215/crmpipeline/pkg/middleware"
)

// Command はtokenサブコマンドを返す。
func Command() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "開発用のJWTを発行して標準出力に書き出す",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user-id",
				Usage:    "トークンのuser_idクレーム",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "トークンのemailクレーム",
			},
			&cli.StringFlag{
				Name:  "secret",
				Usage: "HS256の署名シークレット。省略時はJWT_SECRET",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			secret := cmd.String("secret")
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}

			userID := cmd.String("user-id")
			email := cmd.String("email")
			if email == "" {
				email = userID + "@localhost"
			}

			signed, err := middleware.GenerateJWT(secret, userID, email)
			if err != nil {
				return fmt.Errorf("トークンの発行に失敗: %w", err)
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, signed)
			return err
		},
	}
}
