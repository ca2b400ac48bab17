// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strconv"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, vehicle, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBrandAlreadyExists = "BRAND_ALREADY_EXISTS"
	ErrCodeModelAlreadyExists = "MODEL_ALREADY_EXISTS"
	ErrCodeBrandInUse         = "BRAND_IN_USE"
	ErrCodeBrandNotFound      = "BRAND_NOT_FOUND"
	ErrCodeModelNotFound      = "MODEL_NOT_FOUND"
	ErrCodeInvalidName        = "INVALID_NAME"
	ErrCodeInvalidVehicle     = "INVALID_VEHICLE"
	ErrCodeReferenceData      = "REFERENCE_DATA_UNAVAILABLE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewBrandAlreadyExistsError はブランド重複エラーを生成する。
func NewBrandAlreadyExistsError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeBrandAlreadyExists,
		Message:  fmt.Sprintf("Esta marca já existe no sistema: %s", name),
		Category: "catalog",
		Action:   "Utilize a marca existente ou escolha outro nome.",
	}
}

// NewModelAlreadyExistsError はモデル重複エラーを生成する。
// モデル名の一意性はブランド単位で判定される。
func NewModelAlreadyExistsError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeModelAlreadyExists,
		Message:  fmt.Sprintf("Este modelo já existe para esta marca: %s", name),
		Category: "catalog",
		Action:   "Utilize o modelo existente ou escolha outro nome.",
	}
}

// NewBrandInUseError は参照中ブランドの削除エラーを生成する。
func NewBrandInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeBrandInUse,
		Message:  "Não é possível excluir a marca: existem modelos vinculados.",
		Category: "catalog",
		Action:   "Exclua ou mova os modelos desta marca antes de excluí-la.",
	}
}

// NewBrandNotFoundError はブランド未検出エラーを生成する。
func NewBrandNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeBrandNotFound,
		Message:  fmt.Sprintf("Marca não encontrada: %s", id),
		Category: "catalog",
		Action:   "Atualize a lista de marcas e tente novamente.",
	}
}

// NewModelNotFoundError はモデル未検出エラーを生成する。
func NewModelNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeModelNotFound,
		Message:  fmt.Sprintf("Modelo não encontrado: %s", id),
		Category: "catalog",
		Action:   "Atualize a lista de modelos e tente novamente.",
	}
}

// NewInvalidNameError は名称の入力エラーを生成する。
func NewInvalidNameError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidName,
		Message:  fmt.Sprintf("O campo %s é obrigatório.", field),
		Category: "validation",
		Action:   "Preencha o campo e tente novamente.",
	}
}

// NewInvalidVehicleError は車両登録フォームの入力エラーを生成する。
func NewInvalidVehicleError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVehicle,
		Message:  fmt.Sprintf("Campo inválido (%s): %s", field, reason),
		Category: "vehicle",
		Action:   "Corrija o campo indicado e envie novamente.",
	}
}

// NewReferenceDataError は参照データAPIの取得失敗エラーを生成する。
func NewReferenceDataError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeReferenceData,
		Message:  fmt.Sprintf("Não foi possível consultar a tabela FIPE: %s", reason),
		Category: "vehicle",
		Action:   "Aguarde alguns instantes e tente novamente.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Autenticação necessária.",
		Category: "auth",
		Action:   "Faça login para continuar.",
	}
}

// NewInvalidRequestError はリクエストパラメータの不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "Verifique os dados enviados e tente novamente.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Muitas requisições. Tente novamente mais tarde.",
		Category: "system",
		Action:   "Aguarde " + strconv.Itoa(retryAfterSec) + " segundo(s) e tente novamente.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocorreu um erro interno.",
		Category: "system",
		Action:   "Aguarde alguns instantes e tente novamente.",
	}
}
