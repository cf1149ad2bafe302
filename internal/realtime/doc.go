// Package realtime はWebSocket接続の管理とイベントの配信を行う。
//
// Registryは接続IDとユーザーIDの対応を保持し、Hubは接続とグループ
// （"user:{id}"）を保持する。Gatewayはその2つを使ってハンドシェイク、
// ユーザー宛て配信、全体ブロードキャスト、クライアントからのコマンド処理を行う。
// 配信は送信キューへの非ブロッキングな投入で、失敗してもリトライしない。
//
// 接続情報はプロセス内メモリにのみ保持する。
package realtime
