package infra

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// instanceSecretAAD は暗号文をインスタンスの署名用秘密情報に結び付ける追加認証データ。
// 同じ鍵で暗号化された別用途の暗号文は復号できない。
var instanceSecretAAD = []byte("formularium/instance-signing-secret/v1")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) int64 {
	return int64(crc32.Checksum(b, crc32cTable))
}

// KMSClient はインスタンスの秘密情報を Cloud KMS で暗号化・復号する。
// 送受信するデータは CRC32C で検証する。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient は指定した鍵名でKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, errors.New("KMS_KEY_NAME is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}
	return &KMSClient{client: client, keyName: keyName}, nil
}

// Encrypt は秘密情報を暗号化する。formctl secret encrypt の出力はこの暗号文のBase64。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                              c.keyName,
		Plaintext:                         plaintext,
		PlaintextCrc32C:                   wrapperspb.Int64(checksum(plaintext)),
		AdditionalAuthenticatedData:       instanceSecretAAD,
		AdditionalAuthenticatedDataCrc32C: wrapperspb.Int64(checksum(instanceSecretAAD)),
	})
	if err != nil {
		return nil, fmt.Errorf("encrypting instance secret: %w", err)
	}
	if !resp.VerifiedPlaintextCrc32C || !resp.VerifiedAdditionalAuthenticatedDataCrc32C {
		return nil, errors.New("encrypt request corrupted in transit")
	}
	if resp.CiphertextCrc32C == nil || resp.CiphertextCrc32C.Value != checksum(resp.Ciphertext) {
		return nil, errors.New("encrypt response corrupted in transit")
	}
	return resp.Ciphertext, nil
}

// Decrypt は SIGNING_SECRET_CIPHERTEXT の暗号文を復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                              c.keyName,
		Ciphertext:                        ciphertext,
		CiphertextCrc32C:                  wrapperspb.Int64(checksum(ciphertext)),
		AdditionalAuthenticatedData:       instanceSecretAAD,
		AdditionalAuthenticatedDataCrc32C: wrapperspb.Int64(checksum(instanceSecretAAD)),
	})
	if err != nil {
		return nil, fmt.Errorf("decrypting instance secret: %w", err)
	}
	if resp.PlaintextCrc32C == nil || resp.PlaintextCrc32C.Value != checksum(resp.Plaintext) {
		return nil, errors.New("decrypt response corrupted in transit")
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}
