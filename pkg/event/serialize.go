package event

import (
	"encoding/json"
	"fmt"
)

// New は新しいエンベロープを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(eventType Type, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: eventType}, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	return Envelope{Event: eventType, Data: jsonData}, nil
}

// Error はエラーメッセージを持つエンベロープを生成する。
func Error(eventType Type, err error) Envelope {
	// ErrorDataのシリアライズは失敗しない
	env, _ := New(eventType, ErrorData{Error: err.Error()})
	return env
}

// Encode はエンベロープをワイヤー形式にシリアライズする。
func Encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("エンベロープのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Decode はワイヤー形式のメッセージをエンベロープにデシリアライズする。
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("エンベロープのデシリアライズに失敗: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("イベント名が空です")
	}
	return env, nil
}

// DecodeData はエンベロープのDataフィールドを指定された型にデシリアライズする。
// Dataが空の場合はゼロ値を返す。
func DecodeData[T any](env Envelope) (*T, error) {
	var data T
	if len(env.Data) == 0 {
		return &data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
