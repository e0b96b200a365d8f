package infra

import (
	"bytes"
	"context"
	"crypto"
	_ "crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/usecase"
)

const pgpMessageType = "PGP MESSAGE"

// KeyGenConfig は署名鍵生成のパラメータ。
type KeyGenConfig struct {
	Algorithm string // rsa | ed25519
	RSABits   int
	Lifetime  time.Duration
	Name      string
	Email     string
}

// PGPEngine はOpenPGPによる鍵生成・署名・検証を提供する。
// 秘密鍵はインスタンスの秘密情報をパスフレーズとして保護する。
type PGPEngine struct {
	secrets SecretProvider
	keygen  KeyGenConfig
}

// NewPGPEngine は新しいPGPEngineを生成する。
func NewPGPEngine(secrets SecretProvider, keygen KeyGenConfig) *PGPEngine {
	return &PGPEngine{secrets: secrets, keygen: keygen}
}

func (e *PGPEngine) packetConfig() *packet.Config {
	cfg := &packet.Config{
		DefaultHash:   crypto.SHA512,
		DefaultCipher: packet.CipherAES256,
	}
	if e.keygen.Lifetime > 0 {
		cfg.KeyLifetimeSecs = uint32(e.keygen.Lifetime / time.Second)
	}
	switch e.keygen.Algorithm {
	case "ed25519":
		cfg.Algorithm = packet.PubKeyAlgoEdDSA
	default:
		cfg.Algorithm = packet.PubKeyAlgoRSA
		cfg.RSABits = e.keygen.RSABits
	}
	return cfg
}

// Generate は主鍵と署名用副鍵を生成し、秘密鍵をパスフレーズで保護して返す。
func (e *PGPEngine) Generate(ctx context.Context) (*domain.GeneratedSigningKey, error) {
	passphrase, err := e.secrets.InstanceSecret(ctx)
	if err != nil {
		return nil, err
	}

	cfg := e.packetConfig()
	entity, err := openpgp.NewEntity(e.keygen.Name, "", e.keygen.Email, cfg)
	if err != nil {
		return nil, fmt.Errorf("generating primary key: %w", err)
	}
	if err := entity.AddSigningSubkey(cfg); err != nil {
		return nil, fmt.Errorf("generating signing subkey: %w", err)
	}
	subkey := entity.Subkeys[len(entity.Subkeys)-1]

	publicKey, err := armorEntity(entity, openpgp.PublicKeyType, false)
	if err != nil {
		return nil, err
	}

	if err := entity.PrivateKey.Encrypt(passphrase); err != nil {
		return nil, fmt.Errorf("protecting primary key: %w", err)
	}
	for i := range entity.Subkeys {
		if pk := entity.Subkeys[i].PrivateKey; pk != nil && !pk.Encrypted {
			if err := pk.Encrypt(passphrase); err != nil {
				return nil, fmt.Errorf("protecting subkey: %w", err)
			}
		}
	}
	privateKey, err := armorEntity(entity, openpgp.PrivateKeyType, true)
	if err != nil {
		return nil, err
	}

	return &domain.GeneratedSigningKey{
		PublicKey:          publicKey,
		PrivateKey:         privateKey,
		PrimaryKeyID:       entity.PrimaryKey.KeyIdString(),
		SubkeyID:           subkey.PublicKey.KeyIdString(),
		PrimaryFingerprint: fingerprint(entity.PrimaryKey),
		SubkeyFingerprint:  fingerprint(subkey.PublicKey),
	}, nil
}

func armorEntity(entity *openpgp.Entity, blockType string, private bool) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, blockType, nil)
	if err != nil {
		return "", err
	}
	if private {
		err = entity.SerializePrivateWithoutSigning(w, nil)
	} else {
		err = entity.Serialize(w)
	}
	if err != nil {
		return "", fmt.Errorf("serializing key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func fingerprint(pk *packet.PublicKey) string {
	return strings.ToUpper(hex.EncodeToString(pk.Fingerprint))
}

// Unlock は署名鍵の副鍵だけをパスフレーズで復号し、署名に使える状態にする。
func (e *PGPEngine) Unlock(ctx context.Context, key *domain.SignatureKey) (usecase.Signer, error) {
	passphrase, err := e.secrets.InstanceSecret(ctx)
	if err != nil {
		return nil, err
	}

	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(key.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	if len(entities) != 1 || entities[0].PrivateKey == nil {
		return nil, errors.New("private key material missing")
	}
	entity := entities[0]

	keyID, err := strconv.ParseUint(key.SubkeyID, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing subkey id: %w", err)
	}
	for i := range entity.Subkeys {
		sk := entity.Subkeys[i]
		if sk.PublicKey.KeyId != keyID || sk.PrivateKey == nil {
			continue
		}
		if sk.PrivateKey.Encrypted {
			if err := sk.PrivateKey.Decrypt(passphrase); err != nil {
				return nil, fmt.Errorf("decrypting subkey: %w", err)
			}
		}
		return &pgpSigner{entity: entity, keyID: keyID}, nil
	}
	return nil, fmt.Errorf("subkey %s not found", key.SubkeyID)
}

type pgpSigner struct {
	entity *openpgp.Entity
	keyID  uint64
}

// SignDetached は副鍵でASCII armorの分離署名を作る。
func (s *pgpSigner) SignDetached(message []byte) (string, error) {
	var buf bytes.Buffer
	cfg := &packet.Config{
		DefaultHash:  crypto.SHA512,
		SigningKeyId: s.keyID,
	}
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(message), cfg); err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}
	return buf.String(), nil
}

// VerifyDetached は公開鍵のいずれかで分離署名を検証し、署名した鍵のIDを返す。
// 副鍵で署名されている場合は副鍵のIDになる。
func (e *PGPEngine) VerifyDetached(publicKeys []string, message []byte, signature string) (string, error) {
	var keyring openpgp.EntityList
	for _, pk := range publicKeys {
		el, err := openpgp.ReadArmoredKeyRing(strings.NewReader(pk))
		if err != nil {
			continue
		}
		keyring = append(keyring, el...)
	}
	if len(keyring) == 0 {
		return "", errors.New("no usable public keys")
	}

	block, err := armor.Decode(strings.NewReader(signature))
	if err != nil {
		return "", err
	}
	if block.Type != openpgp.SignatureType {
		return "", pgperrors.InvalidArgumentError("expected '" + openpgp.SignatureType + "', got: " + block.Type)
	}
	sig, signer, err := openpgp.VerifyDetachedSignature(keyring, bytes.NewReader(message), block.Body, nil)
	if err != nil {
		return "", err
	}
	return issuerKeyID(signer, sig), nil
}

// issuerKeyID は署名の発行者IDに一致する鍵を鍵束から探す。
func issuerKeyID(signer *openpgp.Entity, sig *packet.Signature) string {
	if sig.IssuerKeyId != nil {
		for i := range signer.Subkeys {
			if pk := signer.Subkeys[i].PublicKey; pk.KeyId == *sig.IssuerKeyId {
				return pk.KeyIdString()
			}
		}
	}
	return signer.PrimaryKey.KeyIdString()
}

// InspectPublicKey は公開鍵を検証し、主鍵のフィンガープリントを返す。
// 秘密鍵や複数の鍵を含むものは受け付けない。
func (e *PGPEngine) InspectPublicKey(armored string) (string, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return "", err
	}
	if len(entities) != 1 {
		return "", fmt.Errorf("expected exactly one key, got %d", len(entities))
	}
	if entities[0].PrivateKey != nil {
		return "", errors.New("private key material is not accepted")
	}
	return fingerprint(entities[0].PrimaryKey), nil
}

// ValidateMessage はASCII armorのOpenPGPメッセージとして読めるか検証する。内容は復号しない。
func (e *PGPEngine) ValidateMessage(armored string) error {
	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return err
	}
	if block.Type != pgpMessageType {
		return fmt.Errorf("unexpected armor type %q", block.Type)
	}
	n, err := io.Copy(io.Discard, block.Body)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("empty message")
	}
	return nil
}
