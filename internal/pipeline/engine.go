package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/internal/metrics"
	"github.com/nao1215/crmpipeline/internal/notification"
	"github.com/nao1215/crmpipeline/pkg/event"
)

// maxUpdateAttempts は並行更新と衝突したときに読み直す上限回数。
const maxUpdateAttempts = 3

// DefaultSideEffectTimeout は遷移後の通知処理全体のデフォルトのタイムアウト。
const DefaultSideEffectTimeout = 10 * time.Second

// NotificationCreator は通知を永続化する。
type NotificationCreator interface {
	Create(ctx context.Context, in notification.CreateInput) (*notification.Notification, error)
}

// Deliverer は接続中のクライアントへイベントを届ける。
type Deliverer interface {
	DeliverToUser(userID string, n *notification.Notification) error
	BroadcastAll(eventType event.Type, payload any) error
}

// Engine は商談のステージ遷移を行う。
type Engine struct {
	store         Store
	notifications NotificationCreator
	deliverer     Deliverer
	metrics       *metrics.Metrics
	logger        *log.Logger
	// sideEffectTimeout は遷移後の通知処理全体のタイムアウト。
	sideEffectTimeout time.Duration
	// mu はclosedとinflight.Addを保護する。
	mu     sync.Mutex
	closed bool
	// inflight は実行中の通知処理。Waitで待つ。
	inflight sync.WaitGroup
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewEngine はEngineを生成する。mはnil可。
// sideEffectTimeoutが0以下ならDefaultSideEffectTimeoutを使う。
func NewEngine(store Store, notifications NotificationCreator, deliverer Deliverer, m *metrics.Metrics, sideEffectTimeout time.Duration) *Engine {
	if sideEffectTimeout <= 0 {
		sideEffectTimeout = DefaultSideEffectTimeout
	}
	return &Engine{
		store:             store,
		notifications:     notifications,
		deliverer:         deliverer,
		metrics:           m,
		logger:            log.WithPrefix("pipeline"),
		sideEffectTimeout: sideEffectTimeout,
		now:               time.Now,
	}
}

// Deal は担当者と顧客のサマリー付きで商談を返す。
func (e *Engine) Deal(ctx context.Context, dealID string) (*DealDetail, error) {
	detail, err := e.store.FindDealDetail(ctx, dealID)
	if err != nil {
		return nil, apperr.Persistence("商談の取得", err)
	}
	return detail, nil
}

// TransitionStage は商談をnewStageへ移し、更新後の商談を返す。
//
// 現在と同じステージへの遷移は何も書き込まず、通知も行わない。
// 遷移が確定すると通知処理を別のgoroutineで開始し、その完了を待たずに返る。
// actingUserIDは空でもよい。空なら担当者だけに通知する。
func (e *Engine) TransitionStage(ctx context.Context, dealID string, newStage Stage, actingUserID string) (*DealDetail, error) {
	if !newStage.Valid() {
		return nil, apperr.InvalidArgument("未知のステージです: %q", newStage)
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		detail, err := e.store.FindDealDetail(ctx, dealID)
		if err != nil {
			return nil, apperr.Persistence("商談の取得", err)
		}

		previous := detail.Stage
		if previous == newStage {
			return detail, nil
		}

		now := e.now().UTC()
		closeDate := nextCloseDate(detail.ActualCloseDate, previous, newStage, now)
		applied, err := e.store.UpdateStage(ctx, StageUpdate{
			DealID:          dealID,
			From:            previous,
			To:              newStage,
			ActualCloseDate: closeDate,
			UpdatedAt:       now,
		})
		if err != nil {
			return nil, apperr.Persistence("商談ステージの更新", err)
		}
		if !applied {
			e.logger.Debug("並行更新と衝突したため読み直します", "deal_id", dealID, "attempt", attempt)
			continue
		}

		detail.Stage = newStage
		detail.ActualCloseDate = closeDate
		detail.UpdatedAt = now

		e.metrics.StageTransition(string(previous), string(newStage))
		e.logger.Info("商談ステージを変更しました",
			"deal_id", dealID, "from", previous, "to", newStage, "acting_user_id", actingUserID)

		e.dispatch(ctx, transition{
			deal:         *detail,
			previous:     previous,
			actingUserID: actingUserID,
		})
		return detail, nil
	}

	return nil, fmt.Errorf("商談ステージの更新が並行更新と%d回衝突しました: id=%s: %w", maxUpdateAttempts, dealID, apperr.ErrConflict)
}

// Wait は実行中の通知処理がすべて終わるまで待つ。
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Close は以降の通知処理の開始を止め、実行中のものが終わるまで待つ。
// Close後の遷移は保存されるが通知は行わない。
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.inflight.Wait()
}

// nextCloseDate は遷移後の終了日を返す。
// 終端ステージへ入るときは現在時刻、終端ステージから出るときはnil、それ以外は現状維持。
func nextCloseDate(current *time.Time, from, to Stage, now time.Time) *time.Time {
	switch {
	case to.IsTerminal() && from != to:
		return &now
	case from.IsTerminal() && !to.IsTerminal():
		return nil
	default:
		return current
	}
}

// transition は確定したステージ遷移。通知処理の入力になる。
type transition struct {
	deal         DealDetail
	previous     Stage
	actingUserID string
}

// dispatch は通知処理を別のgoroutineで開始する。
// リクエストのキャンセルは引き継がず、sideEffectTimeoutで打ち切る。
func (e *Engine) dispatch(ctx context.Context, t transition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.logger.Warn("停止処理中のため通知を行いません", "deal_id", t.deal.ID, "stage", t.deal.Stage)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sideEffectTimeout)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer cancel()
		e.runSideEffects(ctx, t)
	}()
}

// runSideEffects はブロードキャスト、担当者への通知、操作者への通知を順に行う。
// どのステップが失敗しても残りのステップは実行する。
func (e *Engine) runSideEffects(ctx context.Context, t transition) {
	deal := t.deal

	e.executeStep(deal.ID, "pipelineUpdated", func() error {
		return e.deliverer.BroadcastAll(event.TypePipelineUpdated, event.PipelineUpdatedData{
			DealID:        deal.ID,
			NewStage:      string(deal.Stage),
			PreviousStage: string(t.previous),
			Title:         deal.Title,
		})
	})

	e.executeStep(deal.ID, "ownerNotification", func() error {
		return e.notify(ctx, deal.OwnerID, ownerContent(deal, t.previous), deal)
	})

	if t.actingUserID != "" && t.actingUserID != deal.OwnerID {
		e.executeStep(deal.ID, "actorNotification", func() error {
			return e.notify(ctx, t.actingUserID, actorContent(deal, t.previous), deal)
		})
	}
}

// executeStep はステップを実行し、失敗をログに記録する。エラーは呼び出し元へ返さない。
func (e *Engine) executeStep(dealID, stepName string, action func() error) {
	if err := action(); err != nil {
		e.logger.Error("通知処理のステップに失敗", "deal_id", dealID, "step", stepName, "err", err)
	}
}

// notify は通知を作成し、受信者の接続へ配信する。
func (e *Engine) notify(ctx context.Context, userID string, c content, deal DealDetail) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("通知処理がタイムアウトしました: %w", err)
	}

	actionURL := "/deals/" + deal.ID
	n, err := e.notifications.Create(ctx, notification.CreateInput{
		UserID:    userID,
		Type:      c.notificationType,
		Title:     c.title,
		Message:   &c.message,
		DealID:    &deal.ID,
		ClientID:  &deal.ClientID,
		ActionURL: &actionURL,
	})
	if err != nil {
		return err
	}

	if err := e.deliverer.DeliverToUser(userID, n); err != nil {
		return fmt.Errorf("通知の配信に失敗: notification_id=%s: %w: %w", n.ID, apperr.ErrDelivery, err)
	}
	return nil
}
