// Package event はリアルタイム接続でやり取りするイベントの語彙と
// ワイヤー形式（エンベロープ）を定義する。
package event

import (
	"encoding/json"
)

// Type はイベントの種類を表す。
type Type string

// サーバーからクライアントへ送るイベント。
const (
	// TypeWelcome はハンドシェイク成功時に一度だけ送られる。
	TypeWelcome Type = "welcome"
	// TypeNotification はユーザー宛ての通知を配信する。
	TypeNotification Type = "notification"
	// TypePipelineUpdated は商談ステージの変更を全接続へ知らせる。
	TypePipelineUpdated Type = "pipelineUpdated"
	// TypeNotificationMarkedRead は既読処理の完了を知らせる。
	TypeNotificationMarkedRead Type = "notificationMarkedRead"
	// TypeUnreadCount は未読件数を返す。
	TypeUnreadCount Type = "unreadCount"
	// TypeError はコマンドの解釈に失敗したことを返す。
	TypeError Type = "error"
)

// クライアントからサーバーへ送るコマンド。
const (
	// CommandMarkNotificationRead は通知を既読にする。
	CommandMarkNotificationRead Type = "markNotificationRead"
	// CommandGetUnreadCount は未読件数を問い合わせる。
	CommandGetUnreadCount Type = "getUnreadCount"
)

// Envelope は接続上を流れる1メッセージ。
// {"event": "<name>", "data": {...}} の形でJSONにシリアライズされる。
type Envelope struct {
	// Event はイベント名。
	Event Type `json:"event"`
	// Data はイベント固有のペイロード。
	Data json.RawMessage `json:"data,omitempty"`
}

// WelcomeData はwelcomeイベントのデータ。
type WelcomeData struct {
	// UserID はハンドシェイクで解決されたユーザーID。
	UserID string `json:"userId"`
}

// PipelineUpdatedData はpipelineUpdatedイベントのデータ。
type PipelineUpdatedData struct {
	DealID        string `json:"dealId"`
	NewStage      string `json:"newStage"`
	PreviousStage string `json:"previousStage"`
	Title         string `json:"title"`
}

// NotificationMarkedReadData はnotificationMarkedReadイベントのデータ。
type NotificationMarkedReadData struct {
	NotificationID string `json:"notificationId"`
}

// UnreadCountData はunreadCountイベントのデータ。
type UnreadCountData struct {
	Count int `json:"count"`
}

// ErrorData はコマンド失敗時に返すデータ。
type ErrorData struct {
	Error string `json:"error"`
}

// MarkNotificationReadCommand はmarkNotificationReadコマンドのデータ。
type MarkNotificationReadCommand struct {
	NotificationID string `json:"notificationId" validate:"required"`
}
