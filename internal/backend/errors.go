// Package backend はホスト型バックエンド（認証APIとPostgres）との通信を担う。
// 認証APIのエラー本文、HTTPステータス、通信エラー、SQLSTATEはこの境界で一度だけKindに分類する。
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/lib/pq"
)

// Kind はバックエンドエラーの種別。
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindDuplicate
	KindForeignKey
	KindInvalidCredentials
	KindAlreadyRegistered
	KindUnauthorized
	KindValidation
	KindRateLimited
	KindNetwork
	KindTimeout
	KindServer
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotFound:           "not_found",
	KindDuplicate:          "duplicate",
	KindForeignKey:         "foreign_key",
	KindInvalidCredentials: "invalid_credentials",
	KindAlreadyRegistered:  "already_registered",
	KindUnauthorized:       "unauthorized",
	KindValidation:         "validation",
	KindRateLimited:        "rate_limited",
	KindNetwork:            "network",
	KindTimeout:            "timeout",
	KindServer:             "server",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error はバックエンド呼び出しの失敗を表す。
// Messageはバックエンドが返した文言をそのまま保持し、フォームのバナーに表示される。
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はerrに含まれるKindを返す。*Errorを含まない場合はKindUnknown。
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsKind はerrが指定したKindかを判定する。
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsConnectivity は通信断・タイムアウト・サーバーエラーかを判定する。
// 初期化時の自動リトライの対象はこの分類に限られる。
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindServer:
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// PostgreSQLのSQLSTATE
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
	sqlStateNotNullViolation    = "23502"
	sqlStateInvalidText         = "22P02"
)

// FromDB はdatabase/sqlのエラーを*Errorに変換する。nilはnilのまま返す。
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Kind: KindNotFound, Message: "row not found", Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		e := &Error{Code: string(pqErr.Code), Message: pqErr.Message, Err: err}
		switch string(pqErr.Code) {
		case sqlStateUniqueViolation:
			e.Kind = KindDuplicate
		case sqlStateForeignKeyViolation:
			e.Kind = KindForeignKey
		case sqlStateCheckViolation, sqlStateNotNullViolation, sqlStateInvalidText:
			e.Kind = KindValidation
		default:
			e.Kind = KindUnknown
		}
		return e
	}

	return fromTransport(err)
}

// fromTransport は通信層のエラーを分類する。
func fromTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Message: "request canceled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
		}
		return &Error{Kind: KindNetwork, Message: "network error", Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindNetwork, Message: "network error", Err: err}
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
}

// gotrueErrorBody は認証APIのエラー本文。バージョンにより形が異なる。
type gotrueErrorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	ErrorField       string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// fromResponse は2xx以外の認証APIレスポンスを*Errorに変換する。
func fromResponse(status int, body []byte) *Error {
	var b gotrueErrorBody
	_ = json.Unmarshal(body, &b)

	code := b.ErrorCode
	if code == "" && len(b.Code) > 0 {
		// 新しい形式ではcodeが文字列のエラーコード、古い形式ではHTTPステータス
		var s string
		if json.Unmarshal(b.Code, &s) == nil {
			code = s
		}
	}
	if code == "" {
		code = b.ErrorField
	}

	msg := firstNonEmpty(b.Msg, b.Message, b.ErrorDescription, b.ErrorField)
	if msg == "" {
		msg = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}

	return &Error{
		Kind:    classifyAuth(status, code, msg),
		Status:  status,
		Code:    code,
		Message: msg,
	}
}

func classifyAuth(status int, code, msg string) Kind {
	switch code {
	case "invalid_credentials", "invalid_grant":
		return KindInvalidCredentials
	case "user_already_exists", "email_exists", "phone_exists":
		return KindAlreadyRegistered
	case "weak_password", "validation_failed", "email_address_invalid":
		return KindValidation
	case "bad_jwt", "no_authorization", "session_not_found", "session_expired",
		"refresh_token_not_found", "refresh_token_already_used":
		return KindUnauthorized
	case "over_request_rate_limit", "over_email_send_rate_limit":
		return KindRateLimited
	case "user_not_found":
		return KindNotFound
	}

	lower := strings.ToLower(msg)
	if strings.Contains(lower, "already registered") {
		return KindAlreadyRegistered
	}
	if strings.Contains(lower, "invalid login credentials") {
		return KindInvalidCredentials
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindDuplicate
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
