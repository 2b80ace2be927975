package tarnctlcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/tarnstore/tarn/diskdict"
	"github.com/tarnstore/tarn/key"
)

func getCmd(cfg Config) *Command {
	flags := pflag.NewFlagSet("get", pflag.ContinueOnError)
	flagOut := flags.StringP("output", "o", "", "Write content to `file` instead of stdout")

	return &Command{
		Flags: flags,
		Usage: "get <hex-key> [-o file]",
		Short: "read a blob by its content key",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument: <hex-key>")
			}

			k, err := key.FromHex(args[0])
			if err != nil {
				return fmt.Errorf("parsing key %q: %w", args[0], err)
			}

			d, err := diskdict.Open(cfg.StorageRoot)
			if err != nil {
				return fmt.Errorf("opening storage root %s: %w", cfg.StorageRoot, err)
			}

			h, err := d.Read(ctx, k, false)
			if err != nil {
				return fmt.Errorf("reading %s: %w", k.Hex(), err)
			}
			if !h.Found() {
				return fmt.Errorf("not found: %s", k.Hex())
			}

			r, err := h.Value.Open()
			if err != nil {
				_ = h.Close(err)
				return fmt.Errorf("opening %s: %w", k.Hex(), err)
			}

			var w io.Writer = os.Stdout
			var outFile *os.File
			if *flagOut != "" {
				outFile, err = os.Create(*flagOut)
				if err != nil {
					_ = r.Close()
					_ = h.Close(err)
					return fmt.Errorf("creating %s: %w", *flagOut, err)
				}
				w = outFile
			}

			_, copyErr := io.Copy(w, r)
			closeErr := r.Close()
			if outFile != nil {
				if err := outFile.Close(); err != nil && copyErr == nil {
					copyErr = err
				}
			}
			if copyErr != nil {
				_ = h.Close(copyErr)
				return fmt.Errorf("writing content for %s: %w", k.Hex(), copyErr)
			}
			if closeErr != nil {
				_ = h.Close(closeErr)
				return fmt.Errorf("closing value for %s: %w", k.Hex(), closeErr)
			}

			return h.Close(nil)
		},
	}
}
