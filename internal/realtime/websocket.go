package realtime

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/pkg/event"
	"github.com/nao1215/crmpipeline/pkg/middleware"
)

// WebSocket接続のタイミングとサイズの制限。
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// closeCodeUnauthenticated はハンドシェイク失敗時に送るクローズコード。
const closeCodeUnauthenticated = 4401

// wsConn はgorilla/websocketの接続をConnとして扱うためのラッパー。
// 書き込みはwritePumpだけが行う。
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	// done は接続を閉じるときにcloseされる。
	done      chan struct{}
	closeOnce sync.Once
	// closeCode はwritePumpが最後に送るクローズコード。
	// ハンドシェイクが成功するまでは拒否を表すコードにしておく。
	closeCode int
}

func newWSConn(ws *websocket.Conn, bufferSize int) *wsConn {
	return &wsConn{
		id:        uuid.NewString(),
		ws:        ws,
		send:      make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		closeCode: closeCodeUnauthenticated,
	}
}

// ID は接続IDを返す。
func (c *wsConn) ID() string {
	return c.id
}

// Send はエンコードしたイベントを送信キューへ入れる。
func (c *wsConn) Send(env event.Envelope) error {
	msg, err := event.Encode(env)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrDelivery, err)
	}

	select {
	case <-c.done:
		return fmt.Errorf("接続は切断済みです: id=%s: %w", c.id, apperr.ErrDelivery)
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("送信キューが満杯です: id=%s: %w", c.id, apperr.ErrDelivery)
	}
}

// Close は接続を閉じる。キューに残った未送信のイベントは破棄する。
func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump は送信キューの内容をソケットへ書き込み、定期的にpingを送る。
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// WSHandler は /ws でWebSocket接続を受け付けるGinハンドラ。
type WSHandler struct {
	gateway    *Gateway
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *log.Logger
}

// NewWSHandler はWSHandlerを生成する。
// allowedOriginsに "*" を含めると全オリジンを許可する。
func NewWSHandler(gateway *Gateway, allowedOrigins []string, sendBuffer int) *WSHandler {
	allowOrigin := middleware.OriginMatcher(allowedOrigins)
	return &WSHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// ブラウザ以外のクライアントはOriginを送らない
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin(origin)
			},
		},
		sendBuffer: sendBuffer,
		logger:     log.WithPrefix("realtime"),
	}
}

// credential はクエリパラメータtokenまたはAuthorizationヘッダーから資格情報を取り出す。
func credential(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if token, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		return token
	}
	return ""
}

// Handle は接続をアップグレードし、切断されるまで受信ループを回す。
func (h *WSHandler) Handle(c *gin.Context) {
	token := credential(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Debug("WebSocketへのアップグレードに失敗", "err", err)
		return
	}

	conn := newWSConn(ws, h.sendBuffer)
	go conn.writePump()

	// 失敗時はHandshakeが接続を閉じる
	if _, err := h.gateway.Handshake(conn, token); err != nil {
		return
	}
	conn.closeCode = websocket.CloseNormalClosure
	defer func() {
		h.gateway.Disconnect(conn.ID())
		conn.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocketの読み込みに失敗", "conn_id", conn.ID(), "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.gateway.HandleCommand(ctx, conn.ID(), msg)
	}
}
