package realtime

import (
	"sync"

	"github.com/nao1215/crmpipeline/internal/metrics"
)

// Registry は接続IDとユーザーIDの対応を保持する。
// 1人のユーザーは複数の接続（複数タブ）を持てる。
type Registry struct {
	mu sync.RWMutex
	// byConn は接続ID → ユーザーID。
	byConn map[string]string
	// byUser はユーザーID → 接続IDの集合。
	byUser  map[string]map[string]struct{}
	metrics *metrics.Metrics
}

// NewRegistry は空のRegistryを生成する。mはnil可。
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		byConn:  make(map[string]string),
		byUser:  make(map[string]map[string]struct{}),
		metrics: m,
	}
}

// Register は接続をユーザーに紐付ける。
// すでに別ユーザーに紐付いていた接続は付け替える。
func (r *Registry) Register(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		r.removeLocked(connID, prev)
	}
	r.byConn[connID] = userID
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	r.metrics.SetConnections(len(r.byConn))
}

// Unregister は接続の紐付けを解除する。未登録の接続IDは無視する。
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	r.removeLocked(connID, userID)
	r.metrics.SetConnections(len(r.byConn))
}

// removeLocked は両方向の索引から接続を取り除く。r.muを保持して呼ぶこと。
func (r *Registry) removeLocked(connID, userID string) {
	delete(r.byConn, connID)
	if conns, ok := r.byUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ConnectionsForUser はユーザーの接続IDを返す。返り値は呼び出し側で変更してよい。
func (r *Registry) ConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// UserFor は接続に紐付いたユーザーIDを返す。
func (r *Registry) UserFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[connID]
	return userID, ok
}

// Count は登録中の接続数を返す。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byConn)
}
