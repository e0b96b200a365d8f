package usecase_test

import (
	"bytes"
	"context"
	"sync"
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
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
)

// openTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func openTestDB(t *testing.T) *gorm.DB {
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
	// :memory: は接続ごとに別のデータベースになる
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type recordingMetrics struct {
	mu       sync.Mutex
	signed   int
	rejected map[string]int
	rotated  int
}

func (m *recordingMetrics) SubmissionSigned(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signed++
}

func (m *recordingMetrics) SubmissionRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
}

func (m *recordingMetrics) SigningKeyRotated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotated++
}

type fixture struct {
	db      *gorm.DB
	engine  *infra.PGPEngine
	metrics *recordingMetrics

	formRepo       *repository.FormRepository
	teamRepo       *repository.TeamRepository
	membershipRepo *repository.MembershipRepository
	accessKeyRepo  *repository.AccessKeyRepository
	submissionRepo *repository.SubmissionRepository

	signing     *usecase.SignatureKeyService
	submissions *usecase.SubmissionService
	forms       *usecase.FormService
	keys        *usecase.EncryptionKeyService
	wrapping    *usecase.KeyWrappingService
	teams       *usecase.TeamService
	members     *usecase.MembershipService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := openTestDB(t)
	tx := repository.NewTxManager(db)
	engine := infra.NewPGPEngine(
		infra.NewStaticSecretProvider([]byte("test-instance-secret")),
		infra.KeyGenConfig{Algorithm: "ed25519", Name: "Formularium Test", Email: "signing@example.com"},
	)
	metrics := &recordingMetrics{}

	signatureKeyRepo := repository.NewSignatureKeyRepository(db)
	encryptionKeyRepo := repository.NewEncryptionKeyRepository(db)

	f := &fixture{
		db:             db,
		engine:         engine,
		metrics:        metrics,
		formRepo:       repository.NewFormRepository(db),
		teamRepo:       repository.NewTeamRepository(db),
		membershipRepo: repository.NewMembershipRepository(db),
		accessKeyRepo:  repository.NewAccessKeyRepository(db),
		submissionRepo: repository.NewSubmissionRepository(db),
	}
	f.signing = usecase.NewSignatureKeyService(signatureKeyRepo, tx, engine, engine, metrics)
	f.submissions = usecase.NewSubmissionService(f.formRepo, encryptionKeyRepo, f.submissionRepo, f.membershipRepo, f.signing, engine, metrics)
	f.forms = usecase.NewFormService(f.formRepo, f.teamRepo, tx)
	f.wrapping = usecase.NewKeyWrappingService(encryptionKeyRepo, f.membershipRepo, f.accessKeyRepo, engine, tx)
	f.keys = usecase.NewEncryptionKeyService(encryptionKeyRepo, f.accessKeyRepo, engine, f.wrapping, tx)
	f.members = usecase.NewMembershipService(f.teamRepo, f.membershipRepo, encryptionKeyRepo, f.accessKeyRepo, f.wrapping, tx)
	f.teams = usecase.NewTeamService(f.teamRepo, f.members, tx)
	return f
}

func principal(userID string, caps ...domain.Capability) domain.Principal {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return domain.Principal{UserID: userID, Capabilities: domain.NewCapabilitySet(names...)}
}

// keyAdmin は暗号鍵の有効化と削除ができる主体。
var keyAdmin = principal("key-admin", domain.CapActivateEncryptionKey)

// newRecipientKey は受信者用のASCII armor公開鍵を生成する。
func newRecipientKey(t *testing.T, email string) string {
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

// wrapped はラップ済み鍵の代わりになるOpenPGPメッセージを返す。
// サーバーは中身を復号しないため、形式だけ正しければよい。
func wrapped(t *testing.T, secret string) string {
	t.Helper()

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	require.NoError(t, err)
	_, err = w.Write([]byte(secret))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.String()
}

// addActiveKey はユーザーの暗号鍵を登録して有効化する。
// ユーザーの既存メンバーシップにはラップ済み鍵を用意する。
func (f *fixture) addActiveKey(t *testing.T, userID string) *domain.EncryptionKey {
	t.Helper()
	ctx := context.Background()

	key, err := f.keys.AddKey(ctx, principal(userID, domain.CapAddEncryptionKey), newRecipientKey(t, userID+"@example.com"), "laptop")
	require.NoError(t, err)

	memberships, err := f.membershipRepo.FindByUser(ctx, userID)
	require.NoError(t, err)
	rewrap := domain.WrappedKeysByMembership{}
	for _, m := range memberships {
		rewrap[m.ID] = wrapped(t, "team-secret-"+m.TeamID)
	}

	key, err = f.keys.ActivateKey(ctx, keyAdmin, key.ID, rewrap)
	require.NoError(t, err)
	return key
}

// wrapsFor はユーザーの有効な暗号鍵全てに対するラップ済み鍵を返す。
func (f *fixture) wrapsFor(t *testing.T, keys ...*domain.EncryptionKey) domain.WrappedKeys {
	t.Helper()
	w := domain.WrappedKeys{}
	for _, k := range keys {
		w[k.ID] = wrapped(t, "team-secret")
	}
	return w
}

// createTeam は admin を最初の管理者とするチームを作成する。
func (f *fixture) createTeam(t *testing.T, adminID, name string, adminKeys ...*domain.EncryptionKey) *domain.Team {
	t.Helper()
	team, err := f.teams.CreateTeam(context.Background(), principal(adminID, domain.CapCreateTeam), name, f.wrapsFor(t, adminKeys...))
	require.NoError(t, err)
	return team
}

// addMember はチーム管理者として userID をメンバーに追加する。
func (f *fixture) addMember(t *testing.T, adminID string, team *domain.Team, userID string, role domain.TeamRole, keys ...*domain.EncryptionKey) *domain.TeamMembership {
	t.Helper()
	m, err := f.members.AddMember(context.Background(), principal(adminID), usecase.AddMemberInput{
		TeamID:        team.ID,
		InvitedUserID: userID,
		Role:          string(role),
		WrappedKeys:   f.wrapsFor(t, keys...),
	})
	require.NoError(t, err)
	return m
}

// createForm はチームを受信者とする有効なフォームを作成する。
func (f *fixture) createForm(t *testing.T, name string, teamIDs ...string) *domain.Form {
	t.Helper()
	form, err := f.forms.CreateForm(context.Background(), principal("form-editor", domain.CapEditForm), usecase.CreateFormInput{
		Name:    name,
		Active:  true,
		TeamIDs: teamIDs,
	})
	require.NoError(t, err)
	return form
}
