package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/internal/metrics"
)

// 一覧取得と定期削除のデフォルト値。
const (
	DefaultPageSize      = 20
	MaxPageSize          = 100
	DefaultRetentionDays = 30
)

// Service は通知の作成・参照・既読管理・定期削除を行う。
type Service struct {
	store    Store
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *log.Logger
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewService はServiceを生成する。mはnil可。
func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		metrics:  m,
		validate: validator.New(),
		logger:   log.WithPrefix("notification"),
		now:      time.Now,
	}
}

// Create は受信者1人に宛てた通知を永続化する。
// 受信者の存在確認は行わない。配信も行わない。
func (s *Service) Create(ctx context.Context, in CreateInput) (*Notification, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.InvalidArgument("通知の入力が不正です: %v", err)
	}

	n := &Notification{
		ID:         uuid.NewString(),
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		Read:       false,
		UserID:     in.UserID,
		DealID:     in.DealID,
		ClientID:   in.ClientID,
		ActivityID: in.ActivityID,
		ActionURL:  in.ActionURL,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, apperr.Persistence("通知の作成", err)
	}

	s.metrics.NotificationCreated(string(n.Type))
	s.logger.Debug("通知を作成しました", "id", n.ID, "user_id", n.UserID, "type", n.Type)
	return n, nil
}

// List はuserIDの通知を新しい順にページングして返す。
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	page, pageSize := normalizePage(opts.Page, opts.PageSize)
	filter := Filter{UserID: userID, Read: opts.Read}

	notifications, err := s.store.FindMany(ctx, filter, Page{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, apperr.Persistence("通知一覧の取得", err)
	}

	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("通知件数の取得", err)
	}

	return &ListResult{
		Notifications: notifications,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    (total + pageSize - 1) / pageSize,
	}, nil
}

// GetByID はuserIDが所有する通知を返す。
// 他人の通知は存在しない通知と同じくNotFoundになる。
func (s *Service) GetByID(ctx context.Context, id, userID string) (*Notification, error) {
	n, err := s.store.FindByID(ctx, id, userID)
	if err != nil {
		return nil, apperr.Persistence("通知の取得", err)
	}
	return n, nil
}

// MarkRead はuserIDが所有する通知を既読にし、更新後の通知を返す。
// すでに既読でも成功する。
func (s *Service) MarkRead(ctx context.Context, id, userID string) (*Notification, error) {
	affected, err := s.store.UpdateRead(ctx, Filter{ID: id, UserID: userID})
	if err != nil {
		return nil, apperr.Persistence("通知の既読化", err)
	}
	if affected == 0 {
		return nil, apperr.NotFound("通知", id)
	}
	return s.GetByID(ctx, id, userID)
}

// MarkAllRead はuserIDの未読通知をすべて既読にし、更新件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	unread := false
	affected, err := s.store.UpdateRead(ctx, Filter{UserID: userID, Read: &unread})
	if err != nil {
		return 0, apperr.Persistence("全通知の既読化", err)
	}
	return affected, nil
}

// CountUnread はuserIDの未読通知数を返す。
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	unread := false
	count, err := s.store.Count(ctx, Filter{UserID: userID, Read: &unread})
	if err != nil {
		return 0, apperr.Persistence("未読件数の取得", err)
	}
	return count, nil
}

// PurgeOld はolderThanDays日より前に作成された既読通知を削除し、削除件数を返す。
// 未読通知は古くても削除しない。olderThanDaysが0以下なら30日として扱う。
func (s *Service) PurgeOld(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultRetentionDays
	}
	cutoff := s.now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	read := true

	deleted, err := s.store.DeleteMany(ctx, Filter{Read: &read, CreatedBefore: &cutoff})
	if err != nil {
		return 0, apperr.Persistence(fmt.Sprintf("%d日より古い既読通知の削除", olderThanDays), err)
	}

	s.metrics.NotificationsPurged(deleted)
	s.logger.Info("古い既読通知を削除しました", "deleted", deleted, "older_than_days", olderThanDays)
	return deleted, nil
}

// normalizePage はページ番号とページサイズを有効な範囲に丸める。
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}
