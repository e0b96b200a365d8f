package infra

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formularium/formularium-backend/internal/domain"
)

func newTestEngine(secret string) *PGPEngine {
	return NewPGPEngine(NewStaticSecretProvider([]byte(secret)), KeyGenConfig{
		Algorithm: "ed25519",
		Name:      "Formularium Test",
		Email:     "signing@example.com",
	})
}

func generatedToKey(g *domain.GeneratedSigningKey) *domain.SignatureKey {
	return &domain.SignatureKey{
		Type:       domain.SignatureKeyTypeSecondary,
		PublicKey:  g.PublicKey,
		PrivateKey: g.PrivateKey,
		SubkeyID:   g.SubkeyID,
		Active:     true,
	}
}

func TestPGPEngine_SignAndVerify(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine("instance-secret")

	generated, err := engine.Generate(ctx)
	require.NoError(t, err)
	assert.Contains(t, generated.PublicKey, "BEGIN PGP PUBLIC KEY BLOCK")
	assert.Contains(t, generated.PrivateKey, "BEGIN PGP PRIVATE KEY BLOCK")
	assert.Len(t, generated.PrimaryFingerprint, 40)
	assert.NotEqual(t, generated.PrimaryKeyID, generated.SubkeyID)

	signer, err := engine.Unlock(ctx, generatedToKey(generated))
	require.NoError(t, err)

	message := []byte(`{"form_data":"helo"}`)
	signature, err := signer.SignDetached(message)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signature, "-----BEGIN PGP SIGNATURE-----"))

	keyID, err := engine.VerifyDetached([]string{generated.PublicKey}, message, signature)
	require.NoError(t, err)
	// 署名は副鍵で行われる
	assert.Equal(t, generated.SubkeyID, keyID)
	assert.NotEqual(t, generated.PrimaryKeyID, keyID)

	_, err = engine.VerifyDetached([]string{generated.PublicKey}, []byte(`{"form_data":"help"}`), signature)
	assert.Error(t, err)
}

func TestPGPEngine_VerifyWithUnrelatedKey(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine("instance-secret")

	first, err := engine.Generate(ctx)
	require.NoError(t, err)
	second, err := engine.Generate(ctx)
	require.NoError(t, err)

	signer, err := engine.Unlock(ctx, generatedToKey(first))
	require.NoError(t, err)
	signature, err := signer.SignDetached([]byte("message"))
	require.NoError(t, err)

	_, err = engine.VerifyDetached([]string{second.PublicKey}, []byte("message"), signature)
	assert.Error(t, err)

	// 過去の鍵を含めれば検証できる
	_, err = engine.VerifyDetached([]string{second.PublicKey, first.PublicKey}, []byte("message"), signature)
	assert.NoError(t, err)

	_, err = engine.VerifyDetached([]string{"garbage"}, []byte("message"), signature)
	assert.Error(t, err)
}

func TestPGPEngine_UnlockWithWrongSecret(t *testing.T) {
	ctx := context.Background()

	generated, err := newTestEngine("right").Generate(ctx)
	require.NoError(t, err)

	_, err = newTestEngine("wrong").Unlock(ctx, generatedToKey(generated))
	assert.Error(t, err)

	_, err = newTestEngine("").Unlock(ctx, generatedToKey(generated))
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}

func TestPGPEngine_InspectPublicKey(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine("instance-secret")
	generated, err := engine.Generate(ctx)
	require.NoError(t, err)

	fp, err := engine.InspectPublicKey(generated.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, generated.PrimaryFingerprint, fp)
	assert.Equal(t, strings.ToUpper(fp), fp)

	_, err = engine.InspectPublicKey(generated.PrivateKey)
	assert.Error(t, err)

	_, err = engine.InspectPublicKey("-----BEGIN PGP PUBLIC KEY BLOCK-----\n\nAAAA\n-----END PGP PUBLIC KEY BLOCK-----\n")
	assert.Error(t, err)
}

func TestPGPEngine_ValidateMessage(t *testing.T) {
	engine := newTestEngine("instance-secret")

	encode := func(blockType string, body []byte) string {
		var buf bytes.Buffer
		w, err := armor.Encode(&buf, blockType, nil)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.String()
	}

	assert.NoError(t, engine.ValidateMessage(encode("PGP MESSAGE", []byte("wrapped team secret"))))
	assert.Error(t, engine.ValidateMessage(encode("PGP SIGNATURE", []byte("signature"))))
	assert.Error(t, engine.ValidateMessage(encode("PGP MESSAGE", nil)))
	assert.Error(t, engine.ValidateMessage("plain text"))
}
