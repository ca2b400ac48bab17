package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/autotrackr/internal/model"
)

// ErrorResponseBody はJSONエンドポイントのエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// StatusForAPIError はAPIErrorのコードに対応するHTTPステータスを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBrandAlreadyExists, model.ErrCodeModelAlreadyExists, model.ErrCodeBrandInUse:
		return http.StatusConflict
	case model.ErrCodeBrandNotFound, model.ErrCodeModelNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidName, model.ErrCodeInvalidVehicle, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeReferenceData:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
