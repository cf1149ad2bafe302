package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/internal/notification"
	"github.com/nao1215/crmpipeline/pkg/event"
)

// fakeConn は受信したイベントを記録するConn。
type fakeConn struct {
	id       string
	mu       sync.Mutex
	received []event.Envelope
	closed   bool
	// sendErr が設定されていればSendはそれを返す。
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(env event.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.received = append(c.received, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events() []event.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Envelope(nil), c.received...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// last は最後に受信したイベントを返す。
func (c *fakeConn) last(t *testing.T) event.Envelope {
	t.Helper()
	evs := c.events()
	if len(evs) == 0 {
		t.Fatalf("接続 %s はイベントを受信していない", c.id)
	}
	return evs[len(evs)-1]
}

// staticVerifier はtoken → userIDの対応表で検証する。
type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userID, nil
}

// fakeNotifications はメモリ上でNotificationServiceを模倣する。
type fakeNotifications struct {
	mu     sync.Mutex
	owners map[string]string
	read   map[string]bool
	err    error
}

func (f *fakeNotifications) MarkRead(_ context.Context, id, userID string) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.owners[id] != userID {
		return nil, apperr.NotFound("通知", id)
	}
	f.read[id] = true
	return &notification.Notification{ID: id, UserID: userID, Read: true}, nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	count := 0
	for id, owner := range f.owners {
		if owner == userID && !f.read[id] {
			count++
		}
	}
	return count, nil
}

func setupGateway(t *testing.T) (*Gateway, *Registry, *Hub, *fakeNotifications) {
	t.Helper()

	registry := NewRegistry(nil)
	hub := NewHub(nil)
	notifications := &fakeNotifications{
		owners: map[string]string{"n-1": "user-1", "n-2": "user-1", "n-3": "user-2"},
		read:   map[string]bool{},
	}
	verifier := staticVerifier{"token-1": "user-1", "token-2": "user-2"}
	return NewGateway(registry, hub, verifier, notifications), registry, hub, notifications
}

func mustHandshake(t *testing.T, g *Gateway, conn *fakeConn, token string) {
	t.Helper()
	if _, err := g.Handshake(conn, token); err != nil {
		t.Fatalf("Handshake()でエラーが発生: %v", err)
	}
}

func TestGateway_Handshake(t *testing.T) {
	t.Parallel()

	t.Run("有効な資格情報で登録されwelcomeが届くこと", func(t *testing.T) {
		t.Parallel()
		g, registry, _, _ := setupGateway(t)
		conn := newFakeConn("c1")

		userID, err := g.Handshake(conn, "token-1")
		if err != nil {
			t.Fatalf("Handshake()でエラーが発生: %v", err)
		}
		if userID != "user-1" {
			t.Errorf("userID = %q, want user-1", userID)
		}
		if got, _ := registry.UserFor("c1"); got != "user-1" {
			t.Errorf("UserFor(c1) = %q, want user-1", got)
		}

		welcome := conn.last(t)
		if welcome.Event != event.TypeWelcome {
			t.Fatalf("Event = %q, want welcome", welcome.Event)
		}
		data, err := event.DecodeData[event.WelcomeData](welcome)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.UserID != "user-1" {
			t.Errorf("welcome.userId = %q, want user-1", data.UserID)
		}
	})

	tests := []struct {
		name  string
		token string
	}{
		{name: "資格情報なし", token: ""},
		{name: "無効な資格情報", token: "forged"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"は登録されず切断されること", func(t *testing.T) {
			t.Parallel()
			g, registry, _, _ := setupGateway(t)
			conn := newFakeConn("c1")

			_, err := g.Handshake(conn, tt.token)
			if !errors.Is(err, apperr.ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
			if !conn.isClosed() {
				t.Error("接続が閉じられていない")
			}
			if registry.Count() != 0 {
				t.Errorf("Count() = %d, want 0", registry.Count())
			}
			if len(conn.events()) != 0 {
				t.Errorf("拒否した接続にイベントが送られた: %v", conn.events())
			}
		})
	}
}

func TestGateway_DeliverToUser(t *testing.T) {
	t.Parallel()

	t.Run("同じユーザーの2つの接続に届き他ユーザーには届かないこと", func(t *testing.T) {
		t.Parallel()
		g, _, _, _ := setupGateway(t)
		tab1, tab2, other := newFakeConn("c1"), newFakeConn("c2"), newFakeConn("c3")
		mustHandshake(t, g, tab1, "token-1")
		mustHandshake(t, g, tab2, "token-1")
		mustHandshake(t, g, other, "token-2")

		n := &notification.Notification{ID: "n-9", UserID: "user-1", Type: notification.TypeDealWon, Title: "Deal won: Acme", CreatedAt: time.Now()}
		if err := g.DeliverToUser("user-1", n); err != nil {
			t.Fatalf("DeliverToUser()でエラーが発生: %v", err)
		}

		for _, c := range []*fakeConn{tab1, tab2} {
			got := c.last(t)
			if got.Event != event.TypeNotification {
				t.Fatalf("%s: Event = %q, want notification", c.id, got.Event)
			}
			data, err := event.DecodeData[notification.Notification](got)
			if err != nil {
				t.Fatalf("DecodeData()でエラーが発生: %v", err)
			}
			if data.ID != "n-9" || data.Title != "Deal won: Acme" {
				t.Errorf("%s: 通知 = %+v", c.id, data)
			}
		}
		if got := other.last(t); got.Event != event.TypeWelcome {
			t.Errorf("他ユーザーに %q が届いた", got.Event)
		}
	})

	t.Run("切断後の接続には届かないこと", func(t *testing.T) {
		t.Parallel()
		g, registry, _, _ := setupGateway(t)
		tab1, tab2 := newFakeConn("c1"), newFakeConn("c2")
		mustHandshake(t, g, tab1, "token-1")
		mustHandshake(t, g, tab2, "token-1")

		g.Disconnect("c1")
		if registry.Count() != 1 {
			t.Errorf("Count() = %d, want 1", registry.Count())
		}

		if err := g.DeliverToUser("user-1", &notification.Notification{ID: "n-1"}); err != nil {
			t.Fatalf("DeliverToUser()でエラーが発生: %v", err)
		}
		if got := tab1.last(t); got.Event != event.TypeWelcome {
			t.Errorf("切断した接続に %q が届いた", got.Event)
		}
		if got := tab2.last(t); got.Event != event.TypeNotification {
			t.Errorf("残った接続に届いたイベント = %q, want notification", got.Event)
		}
	})

	t.Run("1つの接続の送信失敗が他の接続への配信を妨げないこと", func(t *testing.T) {
		t.Parallel()
		g, _, _, _ := setupGateway(t)
		broken, healthy := newFakeConn("c1"), newFakeConn("c2")
		mustHandshake(t, g, broken, "token-1")
		mustHandshake(t, g, healthy, "token-1")

		broken.mu.Lock()
		broken.sendErr = fmt.Errorf("送信キューが満杯です: %w", apperr.ErrDelivery)
		broken.mu.Unlock()

		if err := g.DeliverToUser("user-1", &notification.Notification{ID: "n-1"}); err != nil {
			t.Fatalf("DeliverToUser()でエラーが発生: %v", err)
		}
		if got := healthy.last(t); got.Event != event.TypeNotification {
			t.Errorf("Event = %q, want notification", got.Event)
		}
	})

	t.Run("接続のないユーザーへの配信はエラーにならないこと", func(t *testing.T) {
		t.Parallel()
		g, _, _, _ := setupGateway(t)

		if err := g.DeliverToUser("nobody", &notification.Notification{ID: "n-1"}); err != nil {
			t.Errorf("DeliverToUser()でエラーが発生: %v", err)
		}
	})
}

func TestGateway_BroadcastAll(t *testing.T) {
	t.Parallel()

	g, _, _, _ := setupGateway(t)
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")
	mustHandshake(t, g, c1, "token-1")
	mustHandshake(t, g, c2, "token-2")

	payload := event.PipelineUpdatedData{DealID: "deal-1", NewStage: "WON", PreviousStage: "NEGOTIATION", Title: "Acme"}
	if err := g.BroadcastAll(event.TypePipelineUpdated, payload); err != nil {
		t.Fatalf("BroadcastAll()でエラーが発生: %v", err)
	}

	for _, c := range []*fakeConn{c1, c2} {
		got := c.last(t)
		if got.Event != event.TypePipelineUpdated {
			t.Fatalf("%s: Event = %q, want pipelineUpdated", c.id, got.Event)
		}
		data, _ := event.DecodeData[event.PipelineUpdatedData](got)
		if *data != payload {
			t.Errorf("%s: data = %+v, want %+v", c.id, *data, payload)
		}
	}
}

func TestGateway_HandleCommand(t *testing.T) {
	t.Parallel()

	t.Run("markNotificationReadで既読になり応答が返ること", func(t *testing.T) {
		t.Parallel()
		g, _, _, notifications := setupGateway(t)
		conn := newFakeConn("c1")
		mustHandshake(t, g, conn, "token-1")

		g.HandleCommand(context.Background(), "c1", []byte(`{"event":"markNotificationRead","data":{"notificationId":"n-1"}}`))

		got := conn.last(t)
		if got.Event != event.TypeNotificationMarkedRead {
			t.Fatalf("Event = %q, want notificationMarkedRead", got.Event)
		}
		data, _ := event.DecodeData[event.NotificationMarkedReadData](got)
		if data.NotificationID != "n-1" {
			t.Errorf("notificationId = %q, want n-1", data.NotificationID)
		}
		if !notifications.read["n-1"] {
			t.Error("通知が既読になっていない")
		}
	})

	t.Run("他人の通知はエラー応答になること", func(t *testing.T) {
		t.Parallel()
		g, _, _, notifications := setupGateway(t)
		conn := newFakeConn("c1")
		mustHandshake(t, g, conn, "token-1")

		g.HandleCommand(context.Background(), "c1", []byte(`{"event":"markNotificationRead","data":{"notificationId":"n-3"}}`))

		got := conn.last(t)
		data, _ := event.DecodeData[event.ErrorData](got)
		if got.Event != event.TypeNotificationMarkedRead || data.Error == "" {
			t.Errorf("応答 = %s %s, want エラー付きのnotificationMarkedRead", got.Event, got.Data)
		}
		if notifications.read["n-3"] {
			t.Error("他人の通知が既読になった")
		}
	})

	t.Run("notificationIdがない場合はエラー応答になること", func(t *testing.T) {
		t.Parallel()
		g, _, _, _ := setupGateway(t)
		conn := newFakeConn("c1")
		mustHandshake(t, g, conn, "token-1")

		g.HandleCommand(context.Background(), "c1", []byte(`{"event":"markNotificationRead","data":{}}`))

		data, _ := event.DecodeData[event.ErrorData](conn.last(t))
		if data.Error != "notificationIdが必要です" {
			t.Errorf("error = %q", data.Error)
		}
	})

	t.Run("getUnreadCountで未読件数が返ること", func(t *testing.T) {
		t.Parallel()
		g, _, _, _ := setupGateway(t)
		conn := newFakeConn("c1")
		mustHandshake(t, g, conn, "token-1")

		g.HandleCommand(context.Background(), "c1", []byte(`{"event":"getUnreadCount","data":{}}`))

		got := conn.last(t)
		if got.Event != event.TypeUnreadCount {
			t.Fatalf("Event = %q, want unreadCount", got.Event)
		}
		data, _ := event.DecodeData[event.UnreadCountData](got)
		if data.Count != 2 {
			t.Errorf("count = %d, want 2", data.Count)
		}
	})

	t.Run("内部エラーは内容を伏せて返すこと", func(t *testing.T) {
		t.Parallel()
		g, _, _, notifications := setupGateway(t)
		conn := newFakeConn("c1")
		mustHandshake(t, g, conn, "token-1")
		notifications.err = fmt.Errorf("select: %w: connection refused", apperr.ErrPersistence)

		g.HandleCommand(context.Background(), "c1", []byte(`{"event":"getUnreadCount"}`))

		data, _ := event.DecodeData[event.ErrorData](conn.last(t))
		if data.Error != "内部エラーが発生しました" {
			t.Errorf("error = %q", data.Error)
		}
	})

	t.Run("未登録の接続には認証エラーを返すこと", func(t *testing.T) {
		t.Parallel()
		g, _, hub, _ := setupGateway(t)
		conn := newFakeConn("c1")
		hub.Attach(conn)

		g.HandleCommand(context.Background(), "c1", []byte(`{"event":"getUnreadCount"}`))

		got := conn.last(t)
		data, _ := event.DecodeData[event.ErrorData](got)
		if got.Event != event.TypeUnreadCount || data.Error != "認証されていません" {
			t.Errorf("応答 = %s %s", got.Event, got.Data)
		}
	})

	t.Run("未知のイベントと不正なJSONはerrorイベントになること", func(t *testing.T) {
		t.Parallel()
		g, _, _, _ := setupGateway(t)
		conn := newFakeConn("c1")
		mustHandshake(t, g, conn, "token-1")

		for _, raw := range []string{`{"event":"deleteEverything"}`, `not-json`} {
			g.HandleCommand(context.Background(), "c1", []byte(raw))
			if got := conn.last(t); got.Event != event.TypeError {
				t.Errorf("%s: Event = %q, want error", raw, got.Event)
			}
		}
	})
}

func TestGateway_LiveUpdates(t *testing.T) {
	t.Parallel()

	g, _, _, _ := setupGateway(t)
	tab1, tab2 := newFakeConn("c1"), newFakeConn("c2")
	mustHandshake(t, g, tab1, "token-1")
	mustHandshake(t, g, tab2, "token-1")

	g.NotificationMarkedRead("user-1", "n-1")
	for _, c := range []*fakeConn{tab1, tab2} {
		if got := c.last(t); got.Event != event.TypeNotificationMarkedRead {
			t.Errorf("%s: Event = %q, want notificationMarkedRead", c.id, got.Event)
		}
	}

	g.UnreadCountChanged("user-1", 0)
	for _, c := range []*fakeConn{tab1, tab2} {
		got := c.last(t)
		data, _ := event.DecodeData[event.UnreadCountData](got)
		if got.Event != event.TypeUnreadCount || data.Count != 0 {
			t.Errorf("%s: 応答 = %s %s", c.id, got.Event, got.Data)
		}
	}
}
