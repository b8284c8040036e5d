package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
	"github.com/lukeburns/channeler/internal/domain"
)

func deriveCmd() *cobra.Command {
	var f channelFlags
	cmd := &cobra.Command{
		Use:   "derive <channel>",
		Short: "Print the keys of a channel without opening its core",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel := args[0]
			return withApp(cmd, app.Config{}, func(_ context.Context, a *app.App) error {
				km := a.Store.Keys()
				var (
					kp  domain.ChannelKeyPair
					err error
				)
				if f.author == "" {
					if f.private {
						return fmt.Errorf("--private requires --author")
					}
					var req domain.WriteRequest
					if req, err = f.writeRequest(channel); err != nil {
						return err
					}
					var peer *domain.PublicKey
					if req.Scope == domain.ScopePrivate {
						peer = &req.Peer
					}
					kp, err = km.Writable(channel, peer)
				} else {
					author, perr := domain.ParsePublicKey(f.author)
					if perr != nil {
						return fmt.Errorf("--author: %w", perr)
					}
					kp, err = km.Readable(channel, author, f.private)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Channel:       %s\n", channel)
				fmt.Fprintf(out, "Private:       %t\n", kp.Private)
				fmt.Fprintf(out, "Writable:      %t\n", kp.Writable())
				fmt.Fprintf(out, "Public key:    %s\n", kp.PublicKey)
				fmt.Fprintf(out, "Discovery key: %s\n", kp.DiscoveryKey)
				return nil
			})
		},
	}
	f.register(cmd, true)
	return cmd
}
