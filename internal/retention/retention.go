// Package retention は既読通知の保持期間スイープを定期実行する。
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// DefaultTimeout は1回のスイープに許す時間。
const DefaultTimeout = 5 * time.Minute

// Purger は保持期間を過ぎた既読通知を削除する。
type Purger interface {
	PurgeOld(ctx context.Context, olderThanDays int) (int64, error)
}

// Scheduler は保持期間スイープをcron式に従って実行する。
type Scheduler struct {
	cron    *cron.Cron
	purger  Purger
	days    int
	timeout time.Duration
	logger  *log.Logger
}

// NewScheduler はSchedulerを生成する。scheduleは標準のcron式か
// "@daily"や"@every 1h"などの記述子。
func NewScheduler(purger Purger, days int, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		purger:  purger,
		days:    days,
		timeout: DefaultTimeout,
		logger:  log.WithPrefix("retention"),
	}

	// 前回のスイープが終わっていなければ今回分は飛ばす
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("保持期間スイープのスケジュールが不正です: %q: %w", schedule, err)
	}
	return s, nil
}

// Start はスケジューラを開始する。
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.Info("保持期間スイープを開始しました", "days", s.days, "next", entry.Next)
	}
}

// Stop は新しいスイープの開始を止め、実行中のスイープの完了かctxの終了を待つ。
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("保持期間スイープの停止待ちを打ち切りました: %w", ctx.Err())
	}
}

// RunOnce はスイープを1回実行し、削除件数を返す。
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.purger.PurgeOld(ctx, s.days)
}

func (s *Scheduler) run() {
	started := time.Now()
	deleted, err := s.RunOnce(context.Background())
	if err != nil {
		s.logger.Error("保持期間スイープに失敗", "err", err)
		return
	}
	s.logger.Debug("保持期間スイープが完了しました", "deleted", deleted, "elapsed", time.Since(started))
}
