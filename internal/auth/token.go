// Package auth は管理APIのトークン認証、ログイン、ログイン試行回数の制限を提供する。
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/Karans11/ai-news-app/internal/model"
)

// SecretEqual は2つの秘密値を定数時間で比較する。
// 長さの違いも漏れないよう、両者のSHA-256ダイジェストを比較する。
// 期待値が空の場合は常にfalseを返す。
func SecretEqual(got, want string) bool {
	if want == "" {
		return false
	}
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}

// TokenGate は管理系エンドポイントのBearerトークンを検証する。
// トークンはログイン時に発行される単一の静的値で、有効期限やユーザー識別は持たない。
type TokenGate struct {
	token string
}

// NewTokenGate はTokenGateを生成する。
func NewTokenGate(token string) *TokenGate {
	return &TokenGate{token: token}
}

// Check はAuthorizationヘッダーの値を検証する。
// "Bearer <token>" 形式で設定値と一致しない場合は UNAUTHORIZED を返す。
func (g *TokenGate) Check(authorization string) error {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return model.NewUnauthorizedError()
	}
	if !SecretEqual(strings.TrimSpace(token), g.token) {
		return model.NewUnauthorizedError()
	}
	return nil
}
