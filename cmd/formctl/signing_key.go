package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/formularium/formularium-backend/config"
	"github.com/formularium/formularium-backend/internal/infra"
	"github.com/formularium/formularium-backend/internal/repository"
	"github.com/formularium/formularium-backend/internal/usecase"
)

func signingKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signing-key",
		Short: "Manage the server signing key",
	}
	cmd.AddCommand(signingKeyRotateCmd())
	cmd.AddCommand(signingKeyShowCmd())
	cmd.AddCommand(signingKeyListCmd())
	return cmd
}

// newSigningService は設定された秘密情報の取得元で署名鍵サービスを組み立てる。
func newSigningService(ctx context.Context, cfg *config.Config) (*usecase.SignatureKeyService, func(), error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	secrets, kmsClient, err := infra.NewSecretProvider(ctx, cfg)
	if err != nil {
		closeDB(db)
		return nil, nil, err
	}
	engine := infra.NewPGPEngine(secrets, infra.KeyGenConfig{
		Algorithm: cfg.SigningKeyAlgorithm,
		RSABits:   cfg.SigningKeyRSABits,
		Lifetime:  cfg.SigningKeyLifetime,
		Name:      cfg.SigningKeyIdentityName,
		Email:     cfg.SigningKeyIdentityEmail,
	})
	service := usecase.NewSignatureKeyService(
		repository.NewSignatureKeyRepository(db),
		repository.NewTxManager(db),
		engine,
		engine,
		nil,
	)
	closeFn := func() {
		if kmsClient != nil {
			_ = kmsClient.Close()
		}
		closeDB(db)
	}
	return service, closeFn, nil
}

func signingKeyRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Generate a new signing key pair and deactivate the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			service, closeFn, err := newSigningService(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			pair, err := service.RotateSigningKey(ctx)
			if err != nil {
				return fmt.Errorf("rotating signing key: %w", err)
			}
			if output == "json" {
				return printJSON(cmd, []any{pair.Primary.Metadata(), pair.Subkey.Metadata()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rotated signing key (primary: %s, subkey: %s)\n",
				pair.Primary.Fingerprint, pair.Subkey.Fingerprint)
			return nil
		},
	}
}

func signingKeyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active public signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			service, closeFn, err := newSigningService(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			publicKey, err := service.GetActivePublicKey(ctx)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd, map[string]string{"public_key": publicKey})
			}
			fmt.Fprint(cmd.OutOrStdout(), publicKey)
			return nil
		},
	}
}

func signingKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all signing keys ever issued",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			service, closeFn, err := newSigningService(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := service.ListSigningKeys(ctx)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd, keys)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TYPE\tKEY ID\tFINGERPRINT\tACTIVE\tCREATED AT")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", k.Type, k.SubkeyID, k.Fingerprint, k.Active, k.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
