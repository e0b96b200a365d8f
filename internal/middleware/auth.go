package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/pkg/httputil"
)

type principalKey struct{}

// ErrInvalidToken はトークンが不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセストークンのクレーム。sub がユーザーID、caps が権限名の一覧。
type Claims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"caps,omitempty"`
}

// Authenticator はHS256で署名されたBearerトークンを検証する。
// トークンの発行は外部の認証基盤が行う。
type Authenticator struct {
	secret []byte
}

// NewAuthenticator は新しいAuthenticatorを生成する。
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// IssueToken はトークンを発行する。開発とテスト用。
func (a *Authenticator) IssueToken(userID string, caps []string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Capabilities: caps,
	})
	return token.SignedString(a.secret)
}

// Principal はトークンを検証し、権限を解決した主体を返す。
func (a *Authenticator) Principal(tokenString string) (domain.Principal, error) {
	if len(a.secret) == 0 {
		return domain.Principal{}, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Principal{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	return domain.Principal{
		UserID:       claims.Subject,
		Capabilities: domain.NewCapabilitySet(claims.Capabilities...),
	}, nil
}

// Require は Authorization: Bearer のトークンを検証し、主体をコンテキストに格納する。
// 権限はリクエストごとに一度だけ解決する。
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}
		p, err := a.Principal(tokenString)
		if err != nil {
			WriteAuditLog(r.Context(), "AUTHENTICATE", "", "", AuditDenied)
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// WithPrincipal は主体をコンテキストに格納する。
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom はコンテキストから主体を取り出す。未認証の場合はゼロ値を返す。
func PrincipalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}
