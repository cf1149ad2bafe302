package seed

import (
	"context"
	"testing"
	"time"

	"github.com/nao1215/crmpipeline/internal/database/databasetest"
	"github.com/nao1215/crmpipeline/internal/pipeline"
)

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("再実行しても重複しないこと", func(t *testing.T) {
		t.Parallel()
		db := databasetest.New(t)
		now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

		for range 2 {
			if err := Run(context.Background(), db, now); err != nil {
				t.Fatalf("Run()でエラーが発生: %v", err)
			}
		}

		counts := map[string]int{"users": len(demoUsers), "clients": len(demoClients), "deals": len(demoDeals)}
		for table, want := range counts {
			var got int
			if err := db.Get(&got, "SELECT COUNT(*) FROM "+table); err != nil {
				t.Fatalf("%sの件数取得に失敗: %v", table, err)
			}
			if got != want {
				t.Errorf("%sの件数 = %d, want %d", table, got, want)
			}
		}
	})

	t.Run("終了日は終端ステージの商談だけに入ること", func(t *testing.T) {
		t.Parallel()
		db := databasetest.New(t)
		if err := Run(context.Background(), db, time.Now()); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		var deals []pipeline.Deal
		if err := db.Select(&deals, "SELECT * FROM deals"); err != nil {
			t.Fatalf("商談の取得に失敗: %v", err)
		}
		for _, d := range deals {
			if (d.ActualCloseDate != nil) != d.Stage.IsTerminal() {
				t.Errorf("%s: Stage = %s, ActualCloseDate = %v", d.Title, d.Stage, d.ActualCloseDate)
			}
		}
	})

	t.Run("投入した商談をエンジンで読めること", func(t *testing.T) {
		t.Parallel()
		db := databasetest.New(t)
		if err := Run(context.Background(), db, time.Now()); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		detail, err := pipeline.NewSQLStore(db).FindDealDetail(context.Background(), demoID("deal", "Acme renewal"))
		if err != nil {
			t.Fatalf("FindDealDetail()でエラーが発生: %v", err)
		}
		if detail.Owner.Name != "Alice" || detail.Client.Name != "Globex" {
			t.Errorf("サマリー = %+v / %+v", detail.Owner, detail.Client)
		}
	})
}
