// Package seed は開発用のデモデータを投入するサブコマンド。
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"

	"github.com/nao1215/crmpipeline/internal/config"
	"github.com/nao1215/crmpipeline/internal/database"
	"github.com/nao1215/crmpipeline/internal/pipeline"
)

// Command はseedサブコマンドを返す。
func Command() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "開発用のユーザー・顧客・商談を投入する。再実行しても重複しない",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ApplyLogLevel()

			db, err := database.OpenAndMigrate(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := Run(ctx, db, time.Now()); err != nil {
				return err
			}
			log.Info("デモデータを投入しました", "users", len(demoUsers), "clients", len(demoClients), "deals", len(demoDeals))
			return nil
		},
	}
}

// demoID は名前から決まるIDを返す。再実行しても同じIDになる。
func demoID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("crmpipeline/"+kind+"/"+name)).String()
}

type userRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

type clientRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Company   string    `db:"company"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

var demoUsers = []struct{ name, email string }{
	{"Alice", "alice@example.com"},
	{"Bob", "bob@example.com"},
	{"Carol", "carol@example.com"},
}

var demoClients = []struct{ name, company string }{
	{"Globex", "Globex Corporation"},
	{"Initech", "Initech LLC"},
	{"Umbrella", "Umbrella Co."},
}

var demoDeals = []struct {
	title  string
	value  float64
	stage  pipeline.Stage
	owner  string
	client string
}{
	{"Acme renewal", 12000, pipeline.StageProspect, "Alice", "Globex"},
	{"Support upgrade", 4800, pipeline.StageContactMade, "Alice", "Initech"},
	{"Data migration", 30000, pipeline.StageProposal, "Bob", "Umbrella"},
	{"Training package", 2500, pipeline.StageNegotiation, "Carol", "Globex"},
	{"Annual license", 56000, pipeline.StageWon, "Bob", "Initech"},
	{"Pilot project", 8000, pipeline.StageLost, "Carol", "Umbrella"},
}

// stageProbability は各ステージのデモ用の受注確度。
var stageProbability = map[pipeline.Stage]int{
	pipeline.StageProspect:    10,
	pipeline.StageContactMade: 25,
	pipeline.StageProposal:    50,
	pipeline.StageNegotiation: 75,
	pipeline.StageWon:         100,
	pipeline.StageLost:        0,
}

// Run はデモデータを1トランザクションで投入する。既存の行はそのまま残す。
func Run(ctx context.Context, db *sqlx.DB, now time.Time) error {
	now = now.UTC()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, u := range demoUsers {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, name, email, created_at)
			VALUES (:id, :name, :email, :created_at)
			ON CONFLICT (id) DO NOTHING`,
			userRow{ID: demoID("user", u.name), Name: u.name, Email: u.email, CreatedAt: now})
		if err != nil {
			return fmt.Errorf("ユーザーの投入に失敗: name=%s: %w", u.name, err)
		}
	}

	for _, c := range demoClients {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO clients (id, name, company, email, created_at)
			VALUES (:id, :name, :company, :email, :created_at)
			ON CONFLICT (id) DO NOTHING`,
			clientRow{ID: demoID("client", c.name), Name: c.name, Company: c.company, Email: "contact@" + c.name + ".example.com", CreatedAt: now})
		if err != nil {
			return fmt.Errorf("顧客の投入に失敗: name=%s: %w", c.name, err)
		}
	}

	for i, d := range demoDeals {
		expected := now.AddDate(0, 1, i*7)
		deal := pipeline.Deal{
			ID:                demoID("deal", d.title),
			Title:             d.title,
			Value:             d.value,
			Currency:          "USD",
			Stage:             d.stage,
			Probability:       stageProbability[d.stage],
			ExpectedCloseDate: &expected,
			OwnerID:           demoID("user", d.owner),
			ClientID:          demoID("client", d.client),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if d.stage.IsTerminal() {
			deal.ActualCloseDate = &now
		}

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO deals (id, title, value, currency, stage, probability, expected_close_date,
				actual_close_date, owner_id, client_id, created_at, updated_at)
			VALUES (:id, :title, :value, :currency, :stage, :probability, :expected_close_date,
				:actual_close_date, :owner_id, :client_id, :created_at, :updated_at)
			ON CONFLICT (id) DO NOTHING`, deal)
		if err != nil {
			return fmt.Errorf("商談の投入に失敗: title=%s: %w", d.title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}
