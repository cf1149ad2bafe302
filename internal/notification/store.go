package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/crmpipeline/internal/apperr"
)

// Filter は通知を絞り込む条件。ゼロ値のフィールドは条件にしない。
type Filter struct {
	ID            string
	UserID        string
	Read          *bool
	CreatedBefore *time.Time
}

// empty は条件が1つも指定されていないかを返す。
func (f Filter) empty() bool {
	return f.ID == "" && f.UserID == "" && f.Read == nil && f.CreatedBefore == nil
}

// Page はページングの指定。Limitが0以下なら全件。
type Page struct {
	Limit  int
	Offset int
}

// Store は通知の永続化を抽象化する。
// 更新・削除はFilterに一致した行だけを対象にし、影響行数を返す。
type Store interface {
	Create(ctx context.Context, n *Notification) error
	// FindByID はuserIDが所有する通知を返す。存在しない場合はapperr.ErrNotFound。
	FindByID(ctx context.Context, id, userID string) (*Notification, error)
	// FindMany は作成日時の新しい順に返す。
	FindMany(ctx context.Context, filter Filter, page Page) ([]Notification, error)
	Count(ctx context.Context, filter Filter) (int, error)
	// UpdateRead は一致した通知を既読にする。
	UpdateRead(ctx context.Context, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}

// SQLStore はsqlxを使ったStoreの実装。SQLiteとPostgreSQLの両方で動作する。
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore はSQLStoreを生成する。
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

const notificationColumns = `id, type, title, message, is_read, user_id, deal_id, client_id, activity_id, action_url, created_at`

// Create は通知を1件挿入する。
func (s *SQLStore) Create(ctx context.Context, n *Notification) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :type, :title, :message, :is_read, :user_id, :deal_id, :client_id, :activity_id, :action_url, :created_at)`, n)
	if err != nil {
		return fmt.Errorf("通知の挿入に失敗: id=%s: %w", n.ID, err)
	}
	return nil
}

// FindByID はuserIDが所有する通知を1件取得する。
func (s *SQLStore) FindByID(ctx context.Context, id, userID string) (*Notification, error) {
	var n Notification
	query := s.db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE id = ? AND user_id = ?`)
	if err := s.db.GetContext(ctx, &n, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("通知", id)
		}
		return nil, fmt.Errorf("通知の取得に失敗: id=%s: %w", id, err)
	}
	return &n, nil
}

// FindMany は条件に一致する通知を新しい順に取得する。
func (s *SQLStore) FindMany(ctx context.Context, filter Filter, page Page) ([]Notification, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + notificationColumns + ` FROM notifications` + where + ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit, page.Offset)
	}

	notifications := []Notification{}
	if err := s.db.SelectContext(ctx, &notifications, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// Count は条件に一致する通知の件数を返す。
func (s *SQLStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildWhere(filter)

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM notifications`+where), args...); err != nil {
		return 0, fmt.Errorf("通知件数の取得に失敗: %w", err)
	}
	return count, nil
}

// UpdateRead は条件に一致する通知を既読にする。
// 条件なしの全件更新は受け付けない。
func (s *SQLStore) UpdateRead(ctx context.Context, filter Filter) (int64, error) {
	if filter.empty() {
		return 0, apperr.InvalidArgument("既読更新に条件がありません")
	}
	where, args := buildWhere(filter)
	args = append([]any{true}, args...)

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE notifications SET is_read = ?`+where), args...)
	if err != nil {
		return 0, fmt.Errorf("既読更新に失敗: %w", err)
	}
	return result.RowsAffected()
}

// DeleteMany は条件に一致する通知を削除する。
// 条件なしの全件削除は受け付けない。
func (s *SQLStore) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	if filter.empty() {
		return 0, apperr.InvalidArgument("削除に条件がありません")
	}
	where, args := buildWhere(filter)

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM notifications`+where), args...)
	if err != nil {
		return 0, fmt.Errorf("通知の削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

// buildWhere はFilterからWHERE句とバインド引数を組み立てる。
// プレースホルダは?で返すので、呼び出し側でRebindすること。
func buildWhere(filter Filter) (string, []any) {
	var conditions []string
	var args []any

	if filter.ID != "" {
		conditions = append(conditions, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Read != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, *filter.Read)
	}
	if filter.CreatedBefore != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.CreatedBefore.UTC())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
