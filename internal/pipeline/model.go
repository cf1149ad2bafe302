package pipeline

import "time"

// Deal はパイプライン上の商談。
// ActualCloseDateはStageが終端ステージのときだけ値を持つ。
type Deal struct {
	ID                string     `db:"id" json:"id"`
	Title             string     `db:"title" json:"title"`
	Value             float64    `db:"value" json:"value"`
	Currency          string     `db:"currency" json:"currency"`
	Stage             Stage      `db:"stage" json:"stage"`
	Probability       int        `db:"probability" json:"probability"`
	ExpectedCloseDate *time.Time `db:"expected_close_date" json:"expectedCloseDate,omitempty"`
	ActualCloseDate   *time.Time `db:"actual_close_date" json:"actualCloseDate,omitempty"`
	OwnerID           string     `db:"owner_id" json:"ownerId"`
	ClientID          string     `db:"client_id" json:"clientId"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// UserSummary は表示用の担当者情報。
type UserSummary struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// ClientSummary は表示用の顧客情報。
type ClientSummary struct {
	ID      string  `db:"id" json:"id"`
	Name    string  `db:"name" json:"name"`
	Company *string `db:"company" json:"company,omitempty"`
	Email   *string `db:"email" json:"email,omitempty"`
}

// DealDetail は担当者と顧客のサマリーを付けた商談。
type DealDetail struct {
	Deal
	Owner  UserSummary   `db:"owner" json:"owner"`
	Client ClientSummary `db:"client" json:"client"`
}
