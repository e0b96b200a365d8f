package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formularium/formularium-backend/internal/infra"
)

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the instance secret that protects signing keys",
	}
	cmd.AddCommand(secretEncryptCmd())
	return cmd
}

// secretEncryptCmd は標準入力の秘密情報をKMSで暗号化し、SIGNING_SECRET_CIPHERTEXT 用の値を出力する。
func secretEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an instance secret from stdin with KMS_KEY_NAME",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			cfg := loadConfig()

			plaintext, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64<<10))
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			secret := strings.TrimRight(string(plaintext), "\r\n")
			if secret == "" {
				return fmt.Errorf("secret is empty")
			}

			client, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
			if err != nil {
				return err
			}
			defer client.Close()

			ciphertext, err := client.Encrypt(ctx, []byte(secret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(ciphertext))
			return nil
		},
	}
}
