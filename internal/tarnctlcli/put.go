package tarnctlcli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/tarnstore/tarn/diskdict"
	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/location"
	"github.com/tarnstore/tarn/value"
)

func putCmd(cfg Config) *Command {
	flags := pflag.NewFlagSet("put", pflag.ContinueOnError)
	flagFile := flags.StringP("file", "f", "", "Read content from `file` instead of stdin")
	flagLabel := flags.StringArray("label", nil, "Attach a label (repeatable)")

	return &Command{
		Flags: flags,
		Usage: "put [-f file] [--label name]...",
		Short: "write a blob, printing its content key",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			d, err := diskdict.Open(cfg.StorageRoot)
			if err != nil {
				return fmt.Errorf("opening storage root %s: %w", cfg.StorageRoot, err)
			}

			var data []byte
			if *flagFile != "" {
				data, err = os.ReadFile(*flagFile)
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}

			v := value.FromBytes(data)

			newHash := d.Hash()
			if newHash == nil {
				return fmt.Errorf("storage root %s has no configured hash algorithm", cfg.StorageRoot)
			}

			k, err := key.Digest(v, newHash)
			if err != nil {
				return fmt.Errorf("computing digest: %w", err)
			}

			var labels location.Labels
			if len(*flagLabel) > 0 {
				labels = location.Labels(*flagLabel)
			}

			h, err := d.Write(ctx, k, v, labels)
			if err != nil {
				return fmt.Errorf("writing %s: %w", k.Hex(), err)
			}
			if h.Value == nil {
				return fmt.Errorf("write refused for %s (read-only or over capacity)", k.Hex())
			}
			if err := h.Close(nil); err != nil {
				return fmt.Errorf("closing write for %s: %w", k.Hex(), err)
			}

			o.Println(k.Hex())
			return nil
		},
	}
}
