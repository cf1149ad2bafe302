package notification

import "time"

// Type は通知の種類を表す。
type Type string

// 通知の種類。
const (
	TypeDealUpdated       Type = "DEAL_UPDATED"
	TypeDealWon           Type = "DEAL_WON"
	TypeDealLost          Type = "DEAL_LOST"
	TypeDealAssigned      Type = "DEAL_ASSIGNED"
	TypeActivityOverdue   Type = "ACTIVITY_OVERDUE"
	TypeActivityCompleted Type = "ACTIVITY_COMPLETED"
	TypeClientNew         Type = "CLIENT_NEW"
	TypeMention           Type = "MENTION"
	TypeSystem            Type = "SYSTEM"
)

// Notification はユーザー1人に宛てた通知。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// Type は通知の種類。
	Type Type `db:"type" json:"type"`
	// Title は通知のタイトル。
	Title string `db:"title" json:"title"`
	// Message は通知本文。省略可。
	Message *string `db:"message" json:"message,omitempty"`
	// Read は既読状態。
	Read bool `db:"is_read" json:"read"`
	// UserID は受信者のユーザーID。
	UserID string `db:"user_id" json:"userId"`
	// DealID は関連する商談のID。
	DealID *string `db:"deal_id" json:"dealId,omitempty"`
	// ClientID は関連する顧客のID。
	ClientID *string `db:"client_id" json:"clientId,omitempty"`
	// ActivityID は関連する活動のID。
	ActivityID *string `db:"activity_id" json:"activityId,omitempty"`
	// ActionURL は通知をクリックしたときの遷移先。
	ActionURL *string `db:"action_url" json:"actionUrl,omitempty"`
	// CreatedAt は作成日時（UTC）。
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CreateInput は通知作成の入力。
type CreateInput struct {
	UserID     string `validate:"required"`
	Type       Type   `validate:"required"`
	Title      string `validate:"required"`
	Message    *string
	DealID     *string
	ClientID   *string
	ActivityID *string
	ActionURL  *string
}

// ListOptions は一覧取得の条件。
// ゼロ値のPage/PageSizeはそれぞれ1/20として扱う。
type ListOptions struct {
	Page     int
	PageSize int
	// Read がnilでなければ既読状態で絞り込む。
	Read *bool
}

// ListResult は一覧取得の結果。
type ListResult struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"pageSize"`
	TotalPages    int            `json:"totalPages"`
}
