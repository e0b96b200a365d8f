package infra

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formularium/formularium-backend/config"
)

type fakeDecrypter struct {
	calls     int
	plaintext []byte
	err       error
}

func (d *fakeDecrypter) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.plaintext, nil
}

type fakeVault struct {
	secret *vault.Secret
	err    error
	paths  []string
}

func (v *fakeVault) ReadWithContext(ctx context.Context, path string) (*vault.Secret, error) {
	v.paths = append(v.paths, path)
	return v.secret, v.err
}

func TestStaticSecretProvider(t *testing.T) {
	secret, err := NewStaticSecretProvider([]byte("s3cret")).InstanceSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), secret)

	_, err = NewStaticSecretProvider(nil).InstanceSecret(context.Background())
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}

func TestKMSSecretProvider_CachesPlaintext(t *testing.T) {
	d := &fakeDecrypter{plaintext: []byte("from-kms")}
	p, err := NewKMSSecretProvider(d, base64.StdEncoding.EncodeToString([]byte("ciphertext")))
	require.NoError(t, err)

	for range 3 {
		secret, err := p.InstanceSecret(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte("from-kms"), secret)
	}
	assert.Equal(t, 1, d.calls)
}

func TestKMSSecretProvider_Errors(t *testing.T) {
	_, err := NewKMSSecretProvider(&fakeDecrypter{}, "!!not base64!!")
	assert.Error(t, err)

	_, err = NewKMSSecretProvider(&fakeDecrypter{}, "")
	assert.Error(t, err)

	d := &fakeDecrypter{err: errors.New("permission denied")}
	p, err := NewKMSSecretProvider(d, base64.StdEncoding.EncodeToString([]byte("ciphertext")))
	require.NoError(t, err)
	_, err = p.InstanceSecret(context.Background())
	assert.ErrorIs(t, err, ErrSecretUnavailable)

	// 失敗はキャッシュしない
	d.err = nil
	d.plaintext = []byte("recovered")
	secret, err := p.InstanceSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), secret)
}

func TestVaultSecretProvider(t *testing.T) {
	v := &fakeVault{secret: &vault.Secret{Data: map[string]interface{}{
		"data": map[string]interface{}{"secret": "from-vault"},
	}}}
	p := &VaultSecretProvider{logical: v, path: "secret/data/formularium/signing"}

	secret, err := p.InstanceSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-vault"), secret)
	assert.Equal(t, []string{"secret/data/formularium/signing"}, v.paths)
}

func TestVaultSecretProvider_Errors(t *testing.T) {
	tests := []struct {
		name  string
		vault *fakeVault
	}{
		{"read error", &fakeVault{err: errors.New("connection refused")}},
		{"no secret", &fakeVault{}},
		{"not kv v2", &fakeVault{secret: &vault.Secret{Data: map[string]interface{}{"secret": "flat"}}}},
		{"missing key", &fakeVault{secret: &vault.Secret{Data: map[string]interface{}{
			"data": map[string]interface{}{"other": "value"},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &VaultSecretProvider{logical: tt.vault, path: "secret/data/x"}
			_, err := p.InstanceSecret(context.Background())
			assert.ErrorIs(t, err, ErrSecretUnavailable)
		})
	}
}

func TestNewSecretProvider(t *testing.T) {
	ctx := context.Background()

	p, closer, err := NewSecretProvider(ctx, &config.Config{SigningSecretSource: "env", SigningSecret: "dev"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	secret, err := p.InstanceSecret(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("dev"), secret)

	_, _, err = NewSecretProvider(ctx, &config.Config{SigningSecretSource: "env"})
	assert.Error(t, err)

	_, _, err = NewSecretProvider(ctx, &config.Config{SigningSecretSource: "file"})
	assert.Error(t, err)

	p, _, err = NewSecretProvider(ctx, &config.Config{
		SigningSecretSource: "vault",
		VaultAddr:           "http://127.0.0.1:8200",
		VaultSecretPath:     "/secret/data/formularium/signing",
	})
	require.NoError(t, err)
	assert.Equal(t, "secret/data/formularium/signing", p.(*VaultSecretProvider).path)
}
