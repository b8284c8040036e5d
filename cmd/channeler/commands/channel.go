package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/store"
)

// channelFlags selects a channel from the command line: ours when no author
// is given, otherwise the author's.
type channelFlags struct {
	peer    string
	author  string
	private bool
}

func (f *channelFlags) register(cmd *cobra.Command, readable bool) {
	cmd.Flags().StringVar(&f.peer, "peer", "", "hex public key of the peer a private channel is shared with")
	if readable {
		cmd.Flags().StringVar(&f.author, "author", "", "hex public key of the channel author (default: us)")
		cmd.Flags().BoolVar(&f.private, "private", false, "read the channel the author wrote privately to us")
	}
}

func (f *channelFlags) writeRequest(channel string) (domain.WriteRequest, error) {
	if f.peer == "" {
		return domain.WritePublic(channel), nil
	}
	peer, err := domain.ParsePublicKey(f.peer)
	if err != nil {
		return domain.WriteRequest{}, fmt.Errorf("--peer: %w", err)
	}
	return domain.WritePrivate(channel, peer), nil
}

// open resolves the selected channel against s.
func (f *channelFlags) open(s *store.Store, channel string) (*store.Channel, error) {
	if f.author == "" {
		if f.private {
			return nil, fmt.Errorf("--private requires --author")
		}
		req, err := f.writeRequest(channel)
		if err != nil {
			return nil, err
		}
		return s.Writable(req)
	}
	if f.peer != "" {
		return nil, fmt.Errorf("--peer cannot be combined with --author")
	}
	author, err := domain.ParsePublicKey(f.author)
	if err != nil {
		return nil, fmt.Errorf("--author: %w", err)
	}
	if f.private {
		return s.Readable(domain.ReadPrivate(channel, author))
	}
	return s.Readable(domain.ReadPublic(channel, author))
}
