package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/crmpipeline/internal/apperr"
	"github.com/nao1215/crmpipeline/internal/notification"
	"github.com/nao1215/crmpipeline/pkg/event"
)

// TokenVerifier はハンドシェイクの資格情報を検証し、ユーザーIDを返す。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// NotificationService はクライアントからのコマンドで使う通知操作。
type NotificationService interface {
	MarkRead(ctx context.Context, id, userID string) (*notification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Gateway はリアルタイム接続の認証、配信、コマンド処理を行う。
type Gateway struct {
	registry      *Registry
	transport     Transport
	verifier      TokenVerifier
	notifications NotificationService
	validate      *validator.Validate
	logger        *log.Logger
}

// NewGateway はGatewayを生成する。
func NewGateway(registry *Registry, transport Transport, verifier TokenVerifier, notifications NotificationService) *Gateway {
	return &Gateway{
		registry:      registry,
		transport:     transport,
		verifier:      verifier,
		notifications: notifications,
		validate:      validator.New(),
		logger:        log.WithPrefix("realtime"),
	}
}

// Handshake は接続の資格情報を検証する。
// 成功すると接続を登録し、ユーザーのグループに参加させてwelcomeを送る。
// 資格情報がないか無効な場合は登録せずに接続を閉じ、apperr.ErrUnauthenticatedを返す。
func (g *Gateway) Handshake(conn Conn, credential string) (string, error) {
	if credential == "" {
		conn.Close()
		g.logger.Info("資格情報のない接続を拒否しました", "conn_id", conn.ID())
		return "", fmt.Errorf("資格情報がありません: %w", apperr.ErrUnauthenticated)
	}

	userID, err := g.verifier.Verify(credential)
	if err != nil || userID == "" {
		conn.Close()
		g.logger.Info("無効な資格情報の接続を拒否しました", "conn_id", conn.ID(), "err", err)
		return "", fmt.Errorf("資格情報が無効です: %w", apperr.ErrUnauthenticated)
	}

	g.registry.Register(conn.ID(), userID)
	g.transport.Attach(conn)
	g.transport.Join(conn.ID(), UserGroup(userID))

	welcome, err := event.New(event.TypeWelcome, event.WelcomeData{UserID: userID})
	if err != nil {
		return "", err
	}
	if err := g.transport.SendToConnection(conn.ID(), welcome); err != nil {
		g.logger.Warn("welcomeの送信に失敗", "conn_id", conn.ID(), "err", err)
	}

	g.logger.Info("接続を登録しました", "conn_id", conn.ID(), "user_id", userID, "connections", g.registry.Count())
	return userID, nil
}

// Disconnect は接続の登録を解除する。未登録の接続でも安全に呼べる。
func (g *Gateway) Disconnect(connID string) {
	userID, registered := g.registry.UserFor(connID)
	g.registry.Unregister(connID)
	g.transport.Detach(connID)
	if registered {
		g.logger.Info("接続を解除しました", "conn_id", connID, "user_id", userID, "connections", g.registry.Count())
	}
}

// DeliverToUser は通知をユーザーの全接続へ送る。
// 接続がなければ何もしない。接続ごとの失敗はログに記録するだけ。
func (g *Gateway) DeliverToUser(userID string, n *notification.Notification) error {
	if len(g.registry.ConnectionsForUser(userID)) == 0 {
		g.logger.Debug("接続がないため配信をスキップ", "user_id", userID, "notification_id", n.ID)
		return nil
	}
	env, err := event.New(event.TypeNotification, n)
	if err != nil {
		return err
	}
	g.transport.SendToGroup(UserGroup(userID), env)
	return nil
}

// BroadcastAll はイベントを全接続へ送る。
func (g *Gateway) BroadcastAll(eventType event.Type, payload any) error {
	env, err := event.New(eventType, payload)
	if err != nil {
		return err
	}
	g.transport.SendToAll(env)
	return nil
}

// NotificationMarkedRead はREST経由の既読化をユーザーの全接続へ知らせる。
func (g *Gateway) NotificationMarkedRead(userID, notificationID string) {
	env, err := event.New(event.TypeNotificationMarkedRead, event.NotificationMarkedReadData{NotificationID: notificationID})
	if err != nil {
		g.logger.Error("イベントの生成に失敗", "event", event.TypeNotificationMarkedRead, "err", err)
		return
	}
	g.transport.SendToGroup(UserGroup(userID), env)
}

// UnreadCountChanged は未読件数をユーザーの全接続へ知らせる。
func (g *Gateway) UnreadCountChanged(userID string, count int) {
	env, err := event.New(event.TypeUnreadCount, event.UnreadCountData{Count: count})
	if err != nil {
		g.logger.Error("イベントの生成に失敗", "event", event.TypeUnreadCount, "err", err)
		return
	}
	g.transport.SendToGroup(UserGroup(userID), env)
}

// HandleCommand はクライアントから受信した1メッセージを処理し、
// 結果を送信元の接続へ返す。
func (g *Gateway) HandleCommand(ctx context.Context, connID string, raw []byte) {
	cmd, err := event.Decode(raw)
	if err != nil {
		g.reply(connID, event.Error(event.TypeError, err))
		return
	}

	var replyType event.Type
	switch cmd.Event {
	case event.CommandMarkNotificationRead:
		replyType = event.TypeNotificationMarkedRead
	case event.CommandGetUnreadCount:
		replyType = event.TypeUnreadCount
	default:
		g.reply(connID, event.Error(event.TypeError, fmt.Errorf("未知のイベントです: %q", cmd.Event)))
		return
	}

	userID, ok := g.registry.UserFor(connID)
	if !ok {
		g.reply(connID, event.Error(replyType, errors.New("認証されていません")))
		return
	}

	var reply event.Envelope
	switch cmd.Event {
	case event.CommandMarkNotificationRead:
		reply = g.markNotificationRead(ctx, userID, cmd)
	case event.CommandGetUnreadCount:
		reply = g.getUnreadCount(ctx, userID)
	}
	g.reply(connID, reply)
}

// markNotificationRead はmarkNotificationReadコマンドを処理する。
func (g *Gateway) markNotificationRead(ctx context.Context, userID string, cmd event.Envelope) event.Envelope {
	data, err := event.DecodeData[event.MarkNotificationReadCommand](cmd)
	if err != nil {
		return event.Error(event.TypeNotificationMarkedRead, err)
	}
	if err := g.validate.Struct(data); err != nil {
		return event.Error(event.TypeNotificationMarkedRead, errors.New("notificationIdが必要です"))
	}

	if _, err := g.notifications.MarkRead(ctx, data.NotificationID, userID); err != nil {
		return event.Error(event.TypeNotificationMarkedRead, g.clientError(err))
	}

	env, err := event.New(event.TypeNotificationMarkedRead, event.NotificationMarkedReadData{NotificationID: data.NotificationID})
	if err != nil {
		return event.Error(event.TypeNotificationMarkedRead, err)
	}
	return env
}

// getUnreadCount はgetUnreadCountコマンドを処理する。
func (g *Gateway) getUnreadCount(ctx context.Context, userID string) event.Envelope {
	count, err := g.notifications.CountUnread(ctx, userID)
	if err != nil {
		return event.Error(event.TypeUnreadCount, g.clientError(err))
	}

	env, err := event.New(event.TypeUnreadCount, event.UnreadCountData{Count: count})
	if err != nil {
		return event.Error(event.TypeUnreadCount, err)
	}
	return env
}

// clientError はクライアントへ返すエラーを選ぶ。
// ストア障害などの内部エラーは内容を伏せてログに記録する。
func (g *Gateway) clientError(err error) error {
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidArgument) {
		return err
	}
	g.logger.Error("コマンドの処理に失敗", "err", err)
	return errors.New("内部エラーが発生しました")
}

// reply は送信元の接続へ応答を送る。
func (g *Gateway) reply(connID string, env event.Envelope) {
	if err := g.transport.SendToConnection(connID, env); err != nil {
		g.logger.Warn("応答の送信に失敗", "conn_id", connID, "event", env.Event, "err", err)
	}
}
