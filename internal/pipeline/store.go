package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/crmpipeline/internal/apperr"
)

// StageUpdate はステージ変更の書き込み内容。
// 現在のステージがFromのときだけ適用する。
type StageUpdate struct {
	DealID          string
	From            Stage
	To              Stage
	ActualCloseDate *time.Time
	UpdatedAt       time.Time
}

// Store は商談の読み書きを抽象化する。
type Store interface {
	// FindDealDetail は担当者と顧客のサマリー付きで商談を返す。
	// 存在しない場合はapperr.ErrNotFound。
	FindDealDetail(ctx context.Context, id string) (*DealDetail, error)
	// UpdateStage はステージ、終了日、更新日時を1回の更新で書き込む。
	// 現在のステージがFromでなかった場合は何もせずfalseを返す。
	UpdateStage(ctx context.Context, u StageUpdate) (bool, error)
}

// SQLStore はsqlxを使ったStoreの実装。
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore はSQLStoreを生成する。
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

const dealDetailQuery = `
	SELECT
		d.id, d.title, d.value, d.currency, d.stage, d.probability,
		d.expected_close_date, d.actual_close_date, d.owner_id, d.client_id,
		d.created_at, d.updated_at,
		u.id AS "owner.id", u.name AS "owner.name", u.email AS "owner.email",
		c.id AS "client.id", c.name AS "client.name", c.company AS "client.company", c.email AS "client.email"
	FROM deals d
	JOIN users u ON u.id = d.owner_id
	JOIN clients c ON c.id = d.client_id
	WHERE d.id = ?`

// FindDealDetail は商談を担当者・顧客と結合して取得する。
func (s *SQLStore) FindDealDetail(ctx context.Context, id string) (*DealDetail, error) {
	var detail DealDetail
	if err := s.db.GetContext(ctx, &detail, s.db.Rebind(dealDetailQuery), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("商談", id)
		}
		return nil, fmt.Errorf("商談の取得に失敗: id=%s: %w", id, err)
	}
	return &detail, nil
}

// UpdateStage は現在のステージを条件に商談を更新する。
func (s *SQLStore) UpdateStage(ctx context.Context, u StageUpdate) (bool, error) {
	var closeDate any
	if u.ActualCloseDate != nil {
		closeDate = u.ActualCloseDate.UTC()
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE deals
		SET stage = ?, actual_close_date = ?, updated_at = ?
		WHERE id = ? AND stage = ?`),
		string(u.To), closeDate, u.UpdatedAt.UTC(), u.DealID, string(u.From))
	if err != nil {
		return false, fmt.Errorf("商談ステージの更新に失敗: id=%s: %w", u.DealID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗: id=%s: %w", u.DealID, err)
	}
	return affected == 1, nil
}
