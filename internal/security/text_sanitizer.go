// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はフォームから受け取った名称等をプレーンテキストに正規化する。
// bluemondayのStrictPolicyで全てのタグを除去し、保存時にマークアップが残らないようにする。
// 出力時のエスケープはテンプレート側で行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキストへの正規化のインターフェース。
type TextSanitizer interface {
	// Clean はタグを除去し、前後の空白を削除し、連続する空白を1つにまとめる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Clean(raw string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは文字参照をエスケープして返すため、保存用に元へ戻す
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
