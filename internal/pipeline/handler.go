package pipeline

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/pkg/middleware"
)

// Handler は商談APIのHTTPハンドラ。
type Handler struct {
	engine *Engine
	logger *log.Logger
}

// NewHandler はHandlerを生成する。
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine: engine,
		logger: log.WithPrefix("pipeline"),
	}
}

// RegisterRoutes は商談APIのルーティングを設定する。
// rgには認証ミドルウェアが適用済みであること。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	deals := rg.Group("/deals")
	{
		// 商談取得
		deals.GET("/:id", h.handleGet())
		// ステージ変更
		deals.PATCH("/:id/stage", h.handleTransition())
	}
}

// transitionRequest はステージ変更リクエストのJSON構造。
type transitionRequest struct {
	// Stage は遷移先ステージのワイヤー値。
	Stage string `json:"stage" binding:"required"`
}

// handleGet は担当者と顧客のサマリー付きで商談を返すハンドラ。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := h.engine.Deal(c.Request.Context(), c.Param("id"))
		if err != nil {
			h.respondError(c, err, "商談の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// handleTransition は商談のステージを変更するハンドラ。
// 操作者は認証済みユーザー。
func (h *Handler) handleTransition() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req transitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		stage, err := ParseStage(req.Stage)
		if err != nil {
			h.respondError(c, err, "")
			return
		}

		detail, err := h.engine.TransitionStage(c.Request.Context(), c.Param("id"), stage, userID)
		if err != nil {
			h.respondError(c, err, "商談ステージの変更に失敗しました")
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// respondError はエラー種別に応じたステータスでエラーレスポンスを返す。
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(fallback, "err", err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
