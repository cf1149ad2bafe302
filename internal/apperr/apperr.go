// Package apperr はアプリケーション全体で共有するエラー種別を定義する。
//
// 各パッケージはここで定義した番兵エラーを %w でラップして返し、
// 呼び出し側（HTTPハンドラやWebSocketゲートウェイ）は errors.Is で種別を判定する。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound は参照先のリソースが存在しない（または呼び出し元から見えない）ことを表す。
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated は認証情報が欠落または無効であることを表す。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidArgument は入力値が不正であることを表す。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict は並行更新により処理を完了できなかったことを表す。
	ErrConflict = errors.New("conflict")
	// ErrDelivery はリアルタイム配信の失敗を表す。呼び出し元へは伝播させない。
	ErrDelivery = errors.New("delivery failure")
	// ErrPersistence はストアへの書き込み失敗を表す。
	ErrPersistence = errors.New("persistence failure")
)

// NotFound は識別子を含むNotFoundエラーを生成する。
func NotFound(resource, id string) error {
	return fmt.Errorf("%sが見つかりません: id=%s: %w", resource, id, ErrNotFound)
}

// InvalidArgument は理由付きのInvalidArgumentエラーを生成する。
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// Persistence はストアのエラーをErrPersistenceでラップする。
// すでに種別付きのエラーであればそのまま返す。
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// HTTPStatus はエラー種別に対応するHTTPステータスコードを返す。
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
