package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// internalErrorMessage はパニック時にクライアントへ返す固定のメッセージ。
const internalErrorMessage = "内部サーバーエラーが発生しました"

// Recovery はハンドラーのパニックを500に変換するGinミドルウェアを返す。
// パニック値とスタックトレースはログにだけ出し、レスポンスには含めない。
// http.ErrAbortHandlerは接続を切るための意図的なパニックなので再送出する。
func Recovery() gin.HandlerFunc {
	logger := log.WithPrefix("http")
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}
			logger.Error("パニックから回復しました",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"user_id", GetUserID(c),
				"panic", r,
				"stack", string(debug.Stack()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
		}()
		c.Next()
	}
}
