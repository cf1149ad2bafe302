package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// allowAllOrigins を許可リストに含めると全オリジンを許可する。
const allowAllOrigins = "*"

// OriginMatcher は許可リストに対してオリジンを判定する関数を返す。
// 空のオリジンは常に許可しない。
func OriginMatcher(allowedOrigins []string) func(origin string) bool {
	set := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		set[o] = struct{}{}
	}
	_, allowAll := set[allowAllOrigins]

	return func(origin string) bool {
		if origin == "" {
			return false
		}
		if allowAll {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// CORS はダッシュボードからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// 許可されたオリジンにはリクエストのオリジンをそのまま返し、プリフライトは204で終える。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := OriginMatcher(allowedOrigins)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		if origin := c.GetHeader("Origin"); allowed(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, PUT, PATCH, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
