package tarnctlcli

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/tarnstore/tarn/diskdict"
	"github.com/tarnstore/tarn/location"
)

func lsCmd(cfg Config) *Command {
	flags := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	flagLabels := flags.Bool("labels", false, "Show labels for each entry")

	return &Command{
		Flags: flags,
		Usage: "ls [--labels]",
		Short: "list every key in the storage root",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			d, err := diskdict.Open(cfg.StorageRoot)
			if err != nil {
				return fmt.Errorf("opening storage root %s: %w", cfg.StorageRoot, err)
			}

			count := 0
			err = d.Contents(ctx, func(e location.Entry) error {
				count++
				if !*flagLabels || e.Meta == nil {
					o.Println(e.Key.Hex())
					return nil
				}

				labels, labelErr := e.Meta.Labels()
				if labelErr != nil {
					o.Warn(fmt.Sprintf("%s: reading labels: %v", e.Key.Hex(), labelErr))
					o.Println(e.Key.Hex())
					return nil
				}

				o.Printf("%s %v\n", e.Key.Hex(), []string(labels))
				return nil
			})
			if err != nil {
				return fmt.Errorf("listing %s: %w", cfg.StorageRoot, err)
			}

			if count == 0 {
				o.Warn("storage root " + cfg.StorageRoot + " is empty")
			}
			return nil
		},
	}
}
