package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
)

func TestGetActiveSigningKey_None(t *testing.T) {
	f := newFixture(t)

	_, err := f.signing.GetActiveSigningKey(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveSigningKey)

	_, err = f.signing.GetActivePublicKey(context.Background())
	assert.ErrorIs(t, err, domain.ErrCryptoUnavailable)
}

func TestRotateSigningKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.signing.RotateSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureKeyTypePrimary, first.Primary.Type)
	assert.Equal(t, domain.SignatureKeyTypeSecondary, first.Subkey.Type)
	assert.NotEqual(t, first.Primary.SubkeyID, first.Subkey.SubkeyID)
	assert.Contains(t, first.Subkey.PublicKey, "BEGIN PGP PUBLIC KEY BLOCK")
	assert.Contains(t, first.Subkey.PrivateKey, "BEGIN PGP PRIVATE KEY BLOCK")

	second, err := f.signing.RotateSigningKey(ctx)
	require.NoError(t, err)

	active, err := f.signing.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Subkey.ID, active.ID)

	publicKey, err := f.signing.GetActivePublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Subkey.PublicKey, publicKey)

	keys, err := f.signing.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 4)
	activeByType := map[domain.SignatureKeyType]int{}
	for _, k := range keys {
		if k.Active {
			activeByType[k.Type]++
		}
	}
	assert.Equal(t, map[domain.SignatureKeyType]int{
		domain.SignatureKeyTypePrimary:   1,
		domain.SignatureKeyTypeSecondary: 1,
	}, activeByType)
	assert.Equal(t, 2, f.metrics.rotated)
}

func TestRotateSigningKey_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.signing.RotateSigningKey(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	keys, err := f.signing.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 6)
	active := 0
	for _, k := range keys {
		if k.Active && k.Type == domain.SignatureKeyTypeSecondary {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestRotateSigningKey_SeparateInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 同じデータベースを共有する別プロセスのサービス
	services := []*usecase.SignatureKeyService{f.signing}
	for range 2 {
		services = append(services, usecase.NewSignatureKeyService(
			repository.NewSignatureKeyRepository(f.db), repository.NewTxManager(f.db), f.engine, f.engine, nil,
		))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(services)*2)
	for _, svc := range services {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.RotateSigningKey(ctx)
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	keys, err := f.signing.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, len(services)*2*2)
	active := map[domain.SignatureKeyType]int{}
	for _, k := range keys {
		if k.Active {
			active[k.Type]++
		}
	}
	assert.Equal(t, 1, active[domain.SignatureKeyTypePrimary])
	assert.Equal(t, 1, active[domain.SignatureKeyTypeSecondary])
}

func TestVerifySubmission_Malformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.signing.VerifySubmission(ctx, "", "sig")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = f.signing.VerifySubmission(ctx, "{}", "sig")
	assert.ErrorIs(t, err, domain.ErrNoActiveSigningKey)

	_, err = f.signing.RotateSigningKey(ctx)
	require.NoError(t, err)
	_, err = f.signing.VerifySubmission(ctx, "{}", "not a signature")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}
