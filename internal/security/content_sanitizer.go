// Package security はアプリケーションのセキュリティ機能を提供する。
//
// Sanitizer は取り込まれた記事のテキストをサニタイズする。
// 自動化システムや外部フィード由来の入力はそのまま読者向けに配信されるため、
// 保存前にbluemondayの許可リストポリシーで危険なマークアップを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は記事フィールドのサニタイズ機能のインターフェースを定義する。
type Sanitizer interface {
	// Text はタイトル・ソース名・カテゴリ・タグなどの平文フィールドから
	// すべてのマークアップを除去し、連続する空白を1つにまとめて返す。
	Text(raw string) string

	// Summary は要約フィールドをサニタイズする。
	// 段落・改行・強調・リンクのみ許可し、リンクには rel="noopener noreferrer" を付与する。
	Summary(raw string) string
}

// articleSanitizer はSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため、インスタンスを共有して使用できる。
type articleSanitizer struct {
	strict  *bluemonday.Policy
	summary *bluemonday.Policy
}

// NewSanitizer はSanitizerの新しいインスタンスを生成する。
func NewSanitizer() *articleSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "ul", "ol", "li")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "http")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &articleSanitizer{
		strict:  bluemonday.StrictPolicy(),
		summary: p,
	}
}

// Text は平文フィールドをサニタイズする。
// StrictPolicyはエンティティをエスケープするため、平文として保存できるよう元に戻す。
func (s *articleSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.strict.Sanitize(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Summary は要約フィールドをサニタイズする。
func (s *articleSanitizer) Summary(raw string) string {
	return strings.TrimSpace(s.summary.Sanitize(raw))
}
