package notification

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/pkg/middleware"
)

// LiveUpdater はREST経由の既読操作をユーザーのリアルタイム接続へ反映する。
// 別タブの表示を同期するために使う。配信失敗は呼び出し側に返さない。
type LiveUpdater interface {
	NotificationMarkedRead(userID, notificationID string)
	UnreadCountChanged(userID string, count int)
}

// Handler は通知APIのHTTPハンドラ。
type Handler struct {
	// service は通知のビジネスロジック。
	service *Service
	// live はリアルタイム接続への反映先。nil可。
	live   LiveUpdater
	logger *log.Logger
}

// NewHandler はHandlerを生成する。liveはnil可。
func NewHandler(service *Service, live LiveUpdater) *Handler {
	return &Handler{
		service: service,
		live:    live,
		logger:  log.WithPrefix("notification"),
	}
}

// RegisterRoutes は通知APIのルーティングを設定する。
// rgには認証ミドルウェアが適用済みであること。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		// 通知一覧取得
		notifications.GET("", h.handleList())
		// 未読件数取得
		notifications.GET("/unread-count", h.handleUnreadCount())
		// 通知取得
		notifications.GET("/:id", h.handleGet())
		// 通知を既読にする
		notifications.PUT("/:id/read", h.handleMarkAsRead())
		// 全通知を既読にする
		notifications.PUT("/read-all", h.handleMarkAllAsRead())
	}
}

// listQuery は通知一覧のクエリパラメータ。
type listQuery struct {
	// Page は1始まりのページ番号。
	Page int `form:"page" binding:"omitempty,min=1"`
	// PageSize は1ページの件数。上限を超えた値は丸める。
	PageSize int `form:"pageSize" binding:"omitempty,min=1"`
	// Read は既読状態での絞り込み。
	Read *bool `form:"read"`
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "クエリパラメータが不正です: " + err.Error()})
			return
		}

		result, err := h.service.List(c.Request.Context(), userID, ListOptions{
			Page:     q.Page,
			PageSize: q.PageSize,
			Read:     q.Read,
		})
		if err != nil {
			h.respondError(c, err, "通知一覧の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleUnreadCount は認証済みユーザーの未読件数を返すハンドラ。
func (h *Handler) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		count, err := h.service.CountUnread(c.Request.Context(), userID)
		if err != nil {
			h.respondError(c, err, "未読件数の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleGet は指定された通知を返すハンドラ。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		n, err := h.service.GetByID(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			h.respondError(c, err, "通知の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, n)
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
// 他人の通知は存在しない通知と区別せず404を返す。
func (h *Handler) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notificationID := c.Param("id")
		n, err := h.service.MarkRead(c.Request.Context(), notificationID, userID)
		if err != nil {
			h.respondError(c, err, "通知の既読処理に失敗しました")
			return
		}

		if h.live != nil {
			h.live.NotificationMarkedRead(userID, notificationID)
		}
		c.JSON(http.StatusOK, n)
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (h *Handler) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		updated, err := h.service.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			h.respondError(c, err, "全通知の既読処理に失敗しました")
			return
		}

		if h.live != nil {
			// 更新中に新しい通知が届いている可能性があるため数え直す
			if count, err := h.service.CountUnread(c.Request.Context(), userID); err == nil {
				h.live.UnreadCountChanged(userID, count)
			} else {
				h.logger.Warn("未読件数の再取得に失敗", "user_id", userID, "err", err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// respondError はエラー種別に応じたステータスでエラーレスポンスを返す。
// 500の場合は内部のエラー内容を返さずにログへ記録する。
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(fallback, "err", err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
