package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/domain"
)

func initCmd() *cobra.Command {
	var (
		overwrite bool
		secretHex string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file and root key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(config.Path(settings.Home)); errors.Is(err, os.ErrNotExist) {
				if err := config.Save(settings); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			var opts app.Config
			opts.Overwrite = overwrite
			if secretHex != "" {
				sk, err := domain.ParseSecretKey(secretHex)
				if err != nil {
					return err
				}
				opts.SecretKey = &sk
			}
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				km := a.Store.Keys()
				fmt.Fprintf(cmd.OutOrStdout(), "Home: %s\nPublic key: %s\nFingerprint: %s\n",
					settings.Home, km.PublicKey(), km.Fingerprint())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing root key")
	cmd.Flags().StringVar(&secretHex, "secret-key", "", "hex root secret key to use for a new key")
	return cmd
}
