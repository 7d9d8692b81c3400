package auth

import (
	"strings"

	"github.com/Karans11/ai-news-app/internal/model"
)

// LoginService は管理者の認証情報を検証し、管理APIトークンを発行する。
type LoginService struct {
	email    string
	password string
	token    string
}

// NewLoginService はLoginServiceを生成する。
func NewLoginService(email, password, token string) *LoginService {
	return &LoginService{
		email:    strings.ToLower(strings.TrimSpace(email)),
		password: password,
		token:    token,
	}
}

// Login はメールアドレスとパスワードを検証し、一致すればトークンを返す。
// メールアドレスは大文字小文字を区別しない。どちらかが一致しなければ UNAUTHORIZED を返す。
func (s *LoginService) Login(email, password string) (string, error) {
	emailOK := SecretEqual(strings.ToLower(strings.TrimSpace(email)), s.email)
	passwordOK := SecretEqual(password, s.password)
	if !emailOK || !passwordOK {
		return "", model.NewUnauthorizedError()
	}
	return s.token, nil
}
