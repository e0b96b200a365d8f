package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/infra"
	"github.com/formularium/formularium-backend/internal/middleware"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
)

type testServer struct {
	router  http.Handler
	auth    *middleware.Authenticator
	signing *usecase.SignatureKeyService
}

type serverOption func(*RouterConfig)

func withLimiter(l *middleware.RateLimiter) serverOption {
	return func(c *RouterConfig) { c.SubmitLimiter = l }
}

func withReady(fn ReadyFunc) serverOption {
	return func(c *RouterConfig) { c.Ready = fn }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	tx := repository.NewTxManager(db)
	engine := infra.NewPGPEngine(
		infra.NewStaticSecretProvider([]byte("handler-test-secret")),
		infra.KeyGenConfig{Algorithm: "ed25519", Name: "Formularium Test", Email: "signing@example.com"},
	)
	forms := repository.NewFormRepository(db)
	teams := repository.NewTeamRepository(db)
	memberships := repository.NewMembershipRepository(db)
	accessKeys := repository.NewAccessKeyRepository(db)
	keys := repository.NewEncryptionKeyRepository(db)

	signing := usecase.NewSignatureKeyService(repository.NewSignatureKeyRepository(db), tx, engine, engine, nil)
	wrapping := usecase.NewKeyWrappingService(keys, memberships, accessKeys, engine, tx)
	members := usecase.NewMembershipService(teams, memberships, keys, accessKeys, wrapping, tx)
	h := NewHandler(Services{
		Signing:     signing,
		Submissions: usecase.NewSubmissionService(forms, keys, repository.NewSubmissionRepository(db), memberships, signing, engine, nil),
		Forms:       usecase.NewFormService(forms, teams, tx),
		Keys:        usecase.NewEncryptionKeyService(keys, accessKeys, engine, wrapping, tx),
		Wrapping:    wrapping,
		Teams:       usecase.NewTeamService(teams, members, tx),
		Members:     members,
	})

	auth := middleware.NewAuthenticator([]byte("handler-test-jwt"))
	cfg := RouterConfig{Auth: auth, Timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &testServer{router: NewRouter(h, cfg), auth: auth, signing: signing}
}

func (s *testServer) token(t *testing.T, userID string, caps ...domain.Capability) string {
	t.Helper()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	tok, err := s.auth.IssueToken(userID, names, time.Hour)
	require.NoError(t, err)
	return tok
}

// do はリクエストを実行してレスポンスを返す。token が空なら認証ヘッダーを付けない。
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) rotate(t *testing.T) {
	t.Helper()
	_, err := s.signing.RotateSigningKey(context.Background())
	require.NoError(t, err)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[struct {
		Code string `json:"code"`
	}](t, rec).Code
}

func recipientKey(t *testing.T, email string) string {
	t.Helper()

	entity, err := openpgp.NewEntity("Recipient", "", email, &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	return buf.String()
}

func wrappedKey(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	require.NoError(t, err)
	_, err = w.Write([]byte("wrapped team secret"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.String()
}

// activeKey はユーザーの暗号鍵をHTTP経由で登録・有効化する。所属チームがない前提。
func (s *testServer) activeKey(t *testing.T, userID string) EncryptionKeyResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/v1/encryption-keys", s.token(t, userID, domain.CapAddEncryptionKey),
		AddEncryptionKeyRequest{PublicKey: recipientKey(t, userID+"@example.com"), Name: "laptop"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	key := decode[EncryptionKeyResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/v1/encryption-keys/"+key.ID+"/activate", s.token(t, "key-admin", domain.CapActivateEncryptionKey),
		ActivateEncryptionKeyRequest{WrappedKeys: map[string]string{}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[EncryptionKeyResponse](t, rec)
}
