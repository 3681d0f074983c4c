// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はIdPから受け取った表示名からHTMLを除去し、
// プロフィール名として安全なプレーンテキストに正規化する。
// bluemondayのStrictPolicyを使用し、全てのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength はプロフィール名の最大文字数（rune数）。
const MaxNameLength = 100

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// SanitizeName はタグを除去し、空白を正規化した表示名を返す。
	// 結果が空の場合は空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxUnescapePasses はエンティティの多重エンコードを展開する最大回数。
const maxUnescapePasses = 8

// SanitizeName はタグを除去し、空白を正規化した表示名を返す。
func (s *nameSanitizer) SanitizeName(raw string) string {
	if raw == "" {
		return ""
	}

	// StrictPolicyはエンティティをエスケープするため、プレーンテキストに戻す。
	// 戻した結果にエンコードされていたタグが現れるので、出力が変化しなくなるまで繰り返す。
	text := raw
	stable := false
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			stable = true
			break
		}
		text = next
	}
	if !stable {
		// 展開しきれない多重エンコードはタグとして解釈されうる文字を落とす
		text = strings.NewReplacer("<", "", ">", "").Replace(text)
	}

	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxNameLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return text
}
