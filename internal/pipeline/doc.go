// Package pipeline は商談のステージ遷移を扱う。
//
// 任意のステージから任意のステージへ遷移でき、同じステージへの遷移は何もしない。
// 遷移が確定すると、パイプライン更新のブロードキャストと担当者（および操作者）への
// 通知を別のgoroutineで行う。通知の失敗は遷移の結果に影響しない。
package pipeline
