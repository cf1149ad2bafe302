package realtime

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/internal/metrics"
	"github.com/nao1215/crmpipeline/pkg/event"
)

// Conn はイベントの送信先となる1本の接続。
type Conn interface {
	// ID は接続の一意識別子。
	ID() string
	// Send はイベントを送信キューへ入れる。ブロックしない。
	// キューが満杯または切断済みの場合はapperr.ErrDeliveryを返す。
	Send(env event.Envelope) error
	// Close は接続を閉じる。複数回呼んでもよい。
	Close()
}

// Publisher は全接続へのブロードキャストを行う。
type Publisher interface {
	SendToAll(env event.Envelope)
}

// TargetedPublisher はグループまたは特定の接続へ送信する。
type TargetedPublisher interface {
	SendToGroup(group string, env event.Envelope)
	SendToConnection(connID string, env event.Envelope) error
}

// Transport はGatewayが使う配信手段。接続とグループの管理を含む。
type Transport interface {
	Publisher
	TargetedPublisher
	// Attach は接続を配信対象に加える。
	Attach(conn Conn)
	// Join は接続をグループに加える。
	Join(connID, group string)
	// Detach は接続を全グループと配信対象から外す。
	Detach(connID string)
}

// UserGroup はユーザーの全接続が参加するグループ名を返す。
func UserGroup(userID string) string {
	return "user:" + userID
}

// Hub はプロセス内の接続とグループを保持するTransportの実装。
type Hub struct {
	mu sync.RWMutex
	// conns は接続ID → 接続。
	conns map[string]Conn
	// groups はグループ名 → 接続IDの集合。
	groups map[string]map[string]struct{}
	// memberships は接続ID → 参加中のグループ名の集合。
	memberships map[string]map[string]struct{}
	metrics     *metrics.Metrics
	logger      *log.Logger
}

var _ Transport = (*Hub)(nil)

// NewHub は空のHubを生成する。mはnil可。
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		conns:       make(map[string]Conn),
		groups:      make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		metrics:     m,
		logger:      log.WithPrefix("realtime"),
	}
}

// Attach は接続を配信対象に加える。
func (h *Hub) Attach(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn.ID()] = conn
}

// Join は接続をグループに加える。未登録の接続は無視する。
func (h *Hub) Join(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connID] = struct{}{}

	joined, ok := h.memberships[connID]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[connID] = joined
	}
	joined[group] = struct{}{}
}

// Detach は接続を全グループと配信対象から外す。
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for group := range h.memberships[connID] {
		members := h.groups[group]
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	delete(h.memberships, connID)
	delete(h.conns, connID)
}

// SendToAll は全接続へ送信する。接続ごとの失敗はログに記録するだけ。
func (h *Hub) SendToAll(env event.Envelope) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, env)
}

// SendToGroup はグループの全接続へ送信する。接続ごとの失敗はログに記録するだけ。
func (h *Hub) SendToGroup(group string, env event.Envelope) {
	h.mu.RLock()
	members := h.groups[group]
	targets := make([]Conn, 0, len(members))
	for id := range members {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, env)
}

// SendToConnection は1本の接続へ送信する。
func (h *Hub) SendToConnection(connID string, env event.Envelope) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("接続が見つかりません: id=%s: %w", connID, apperr.ErrDelivery)
		h.metrics.Delivery(string(env.Event), err)
		return err
	}
	err := c.Send(env)
	h.metrics.Delivery(string(env.Event), err)
	return err
}

// deliver は送信先ごとにSendを呼ぶ。ロックを保持せずに呼ぶこと。
func (h *Hub) deliver(targets []Conn, env event.Envelope) {
	for _, c := range targets {
		err := c.Send(env)
		h.metrics.Delivery(string(env.Event), err)
		if err != nil {
			h.logger.Warn("イベントの配信に失敗", "conn_id", c.ID(), "event", env.Event, "err", err)
		}
	}
}
