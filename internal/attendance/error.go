package attendance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// 名簿にない ID。台帳には触らない。
	ErrIdentityNotFound = errors.New("identity not found")
	// 追記しようとしたキーに既に open がある（競合に負けた）
	ErrDuplicateOpenSession = errors.New("duplicate open session")
	// 閉じようとした記録が既に閉じている / 存在しない / stale
	ErrRecordNotOpen = errors.New("record not open")
	// 競合で 1 回再試行しても決着しなかった
	ErrConcurrentScanConflict = errors.New("concurrent scan conflict")
	// 保存先の I/O 失敗。部分書き込みは残らない。
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ===== Error model (LIMS の assets/lends と同型) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }

// toAPIError は内部エラーを画面に返せる形へ寄せる。
func toAPIError(err error) *APIError {
	var api *APIError
	switch {
	case errors.As(err, &api):
		return api
	case errors.Is(err, ErrIdentityNotFound):
		return &APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, ErrConcurrentScanConflict),
		errors.Is(err, ErrDuplicateOpenSession),
		errors.Is(err, ErrRecordNotOpen):
		return &APIError{Code: CodeConflict, Message: err.Error()}
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &APIError{Code: CodeUnavailable, Message: err.Error()}
	default:
		return &APIError{Code: CodeInternal, Message: err.Error()}
	}
}

func toHTTPStatus(err error) int {
	switch toAPIError(err).Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// storageErr はドメインエラー以外を ErrStorageUnavailable で包む。
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) ||
		errors.Is(err, ErrDuplicateOpenSession) ||
		errors.Is(err, ErrRecordNotOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
