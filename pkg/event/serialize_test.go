package event

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestNew はNew関数でエンベロープが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("データ付きのエンベロープを生成できること", func(t *testing.T) {
		t.Parallel()

		env, err := New(TypePipelineUpdated, PipelineUpdatedData{
			DealID:        "deal-1",
			NewStage:      "WON",
			PreviousStage: "PROSPECT",
			Title:         "大型案件",
		})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if env.Event != TypePipelineUpdated {
			t.Errorf("Event = %q, want %q", env.Event, TypePipelineUpdated)
		}

		var got map[string]any
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatalf("Dataのデシリアライズに失敗: %v", err)
		}
		if got["dealId"] != "deal-1" || got["newStage"] != "WON" || got["previousStage"] != "PROSPECT" {
			t.Errorf("Dataのフィールドが不正: %v", got)
		}
	})

	t.Run("dataがnilの場合はDataが空", func(t *testing.T) {
		t.Parallel()

		env, err := New(CommandGetUnreadCount, nil)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if len(env.Data) != 0 {
			t.Errorf("Data = %s, want 空", env.Data)
		}
	})

	t.Run("シリアライズできない値はエラー", func(t *testing.T) {
		t.Parallel()

		if _, err := New(TypeNotification, make(chan int)); err == nil {
			t.Fatal("chanのシリアライズでエラーにならなかった")
		}
	})
}

// TestEncodeDecode はワイヤー形式の往復を検証する。
func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	t.Run("ワイヤー形式がevent/dataのJSONであること", func(t *testing.T) {
		t.Parallel()

		env, _ := New(TypeWelcome, WelcomeData{UserID: "user-1"})
		raw, err := Encode(env)
		if err != nil {
			t.Fatalf("Encode()でエラーが発生: %v", err)
		}
		if string(raw) != `{"event":"welcome","data":{"userId":"user-1"}}` {
			t.Errorf("Encode() = %s", raw)
		}
	})

	t.Run("コマンドをデコードできること", func(t *testing.T) {
		t.Parallel()

		env, err := Decode([]byte(`{"event":"markNotificationRead","data":{"notificationId":"n-1"}}`))
		if err != nil {
			t.Fatalf("Decode()でエラーが発生: %v", err)
		}
		cmd, err := DecodeData[MarkNotificationReadCommand](env)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if cmd.NotificationID != "n-1" {
			t.Errorf("NotificationID = %q, want n-1", cmd.NotificationID)
		}
	})

	t.Run("イベント名がない場合はエラー", func(t *testing.T) {
		t.Parallel()

		if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
			t.Fatal("イベント名なしでエラーにならなかった")
		}
	})

	t.Run("不正なJSONはエラー", func(t *testing.T) {
		t.Parallel()

		if _, err := Decode([]byte(`not-json`)); err == nil {
			t.Fatal("不正なJSONでエラーにならなかった")
		}
	})

	t.Run("Dataが空ならゼロ値を返す", func(t *testing.T) {
		t.Parallel()

		got, err := DecodeData[UnreadCountData](Envelope{Event: CommandGetUnreadCount})
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if got.Count != 0 {
			t.Errorf("Count = %d, want 0", got.Count)
		}
	})
}

func TestError(t *testing.T) {
	t.Parallel()

	env := Error(TypeNotificationMarkedRead, errors.New("通知が見つかりません"))
	if env.Event != TypeNotificationMarkedRead {
		t.Errorf("Event = %q", env.Event)
	}
	data, err := DecodeData[ErrorData](env)
	if err != nil {
		t.Fatalf("DecodeData()でエラーが発生: %v", err)
	}
	if data.Error != "通知が見つかりません" {
		t.Errorf("Error = %q", data.Error)
	}
}
