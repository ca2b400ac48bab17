package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFromDB_MapsSQLState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"一意制約違反", &pq.Error{Code: "23505", Message: "duplicate key value"}, KindDuplicate},
		{"外部キー制約違反", &pq.Error{Code: "23503"}, KindForeignKey},
		{"チェック制約違反", &pq.Error{Code: "23514"}, KindValidation},
		{"行なし", sql.ErrNoRows, KindNotFound},
		{"ラップされた行なし", fmt.Errorf("query: %w", sql.ErrNoRows), KindNotFound},
		{"タイムアウト", context.DeadlineExceeded, KindTimeout},
		{"その他", fmt.Errorf("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(FromDB(tt.err)))
		})
	}
}

func TestFromDB_Nil(t *testing.T) {
	require.NoError(t, FromDB(nil))
}

func TestFromDB_KeepsPostgresMessage(t *testing.T) {
	err := FromDB(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "brands_name_key"`})
	require.EqualError(t, err, `duplicate key value violates unique constraint "brands_name_key"`)
}

func TestFromResponse_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
		msg    string
	}{
		{
			name:   "誤った認証情報",
			status: http.StatusBadRequest,
			body:   `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			want:   KindInvalidCredentials,
			msg:    "Invalid login credentials",
		},
		{
			name:   "旧形式のinvalid_grant",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_grant","error_description":"Invalid Refresh Token: Refresh Token Not Found"}`,
			want:   KindInvalidCredentials,
			msg:    "Invalid Refresh Token: Refresh Token Not Found",
		},
		{
			name:   "登録済みメールアドレス",
			status: http.StatusUnprocessableEntity,
			body:   `{"code":"user_already_exists","msg":"User already registered"}`,
			want:   KindAlreadyRegistered,
			msg:    "User already registered",
		},
		{
			name:   "文言のみで登録済みを判定",
			status: http.StatusBadRequest,
			body:   `{"msg":"User already registered"}`,
			want:   KindAlreadyRegistered,
		},
		{
			name:   "弱いパスワード",
			status: http.StatusUnprocessableEntity,
			body:   `{"error_code":"weak_password","msg":"Password should be at least 6 characters"}`,
			want:   KindValidation,
		},
		{
			name:   "401",
			status: http.StatusUnauthorized,
			body:   `{"msg":"invalid JWT"}`,
			want:   KindUnauthorized,
		},
		{
			name:   "429",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			want:   KindRateLimited,
		},
		{
			name:   "500で本文なし",
			status: http.StatusInternalServerError,
			body:   ``,
			want:   KindServer,
			msg:    "500 Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fromResponse(tt.status, []byte(tt.body))
			require.Equal(t, tt.want, err.Kind)
			require.Equal(t, tt.status, err.Status)
			if tt.msg != "" {
				require.Equal(t, tt.msg, err.Error())
			}
		})
	}
}

func TestIsConnectivity(t *testing.T) {
	require.True(t, IsConnectivity(&Error{Kind: KindNetwork}))
	require.True(t, IsConnectivity(&Error{Kind: KindTimeout}))
	require.True(t, IsConnectivity(fmt.Errorf("wrap: %w", &Error{Kind: KindServer})))
	require.True(t, IsConnectivity(context.DeadlineExceeded))
	require.False(t, IsConnectivity(&Error{Kind: KindInvalidCredentials}))
	require.False(t, IsConnectivity(nil))
}
