// CRMパイプラインサービスのエントリポイント。
// 商談のステージ遷移と、それに伴う通知のリアルタイム配信を1プロセスで提供する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/nao1215/crmpipeline/internal/cmd/migrate"
	"github.com/nao1215/crmpipeline/internal/cmd/purge"
	"github.com/nao1215/crmpipeline/internal/cmd/seed"
	"github.com/nao1215/crmpipeline/internal/cmd/serve"
	"github.com/nao1215/crmpipeline/internal/cmd/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "crm",
		Usage: "CRM商談パイプラインとリアルタイム通知のサービス",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			purge.Command(),
			token.Command(),
			seed.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
