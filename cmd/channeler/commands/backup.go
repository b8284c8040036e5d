package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/services/keys"
)

func exportCmd() *cobra.Command {
	var (
		passphrase string
		out        string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Seal the root key with a passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			return withApp(cmd, app.Config{}, func(_ context.Context, a *app.App) error {
				sk, err := a.Store.Keys().SecretKey()
				if err != nil {
					return err
				}
				defer crypto.Wipe(sk[:])

				sealed, err := keys.Seal(passphrase, sk)
				if err != nil {
					return err
				}
				if out == "" {
					_, err = cmd.OutOrStdout().Write(append(sealed, '\n'))
					return err
				}
				return os.WriteFile(out, sealed, 0o600)
			})
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to seal the key with")
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the root key with a sealed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sk, err := keys.Unseal(passphrase, b)
			if err != nil {
				return err
			}
			defer crypto.Wipe(sk[:])

			return withApp(cmd, app.Config{Overwrite: true, SecretKey: &sk}, func(_ context.Context, a *app.App) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Imported key %s\nFingerprint: %s\n",
					a.Store.PublicKey(), a.Store.Keys().Fingerprint())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase the key was sealed with")
	return cmd
}
