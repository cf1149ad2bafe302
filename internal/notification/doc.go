// Package notification はユーザー宛て通知の永続化と参照を提供する。
//
// 通知は必ず1人の受信者を持ち、このパッケージのServiceだけが作成する。
// 作成後に変更されるのは既読フラグ（false→true）のみで、
// 削除は保持期間を過ぎた既読通知の定期削除に限られる。
// リアルタイム配信は行わない。配信はrealtimeパッケージの責務。
package notification
