package tarnctlcli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/tarnstore/tarn/diskdict"
	"github.com/tarnstore/tarn/location"
)

// gcCmd deletes entries that haven't been read or written more recently
// than --older-than. Entries with no usable LastUsed (never touched, or
// the location tracks no usage timestamps at all) are left alone --
// gc only ever acts on a positive signal of staleness, never on its
// absence.
func gcCmd(cfg Config) *Command {
	flags := pflag.NewFlagSet("gc", pflag.ContinueOnError)
	flagOlderThan := flags.Duration("older-than", 30*24*time.Hour, "Delete entries not used for at least this long")
	flagDryRun := flags.Bool("dry-run", false, "List what would be deleted without deleting it")

	return &Command{
		Flags: flags,
		Usage: "gc [--older-than dur] [--dry-run]",
		Short: "delete entries not used within a retention window",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			d, err := diskdict.Open(cfg.StorageRoot)
			if err != nil {
				return fmt.Errorf("opening storage root %s: %w", cfg.StorageRoot, err)
			}

			cutoff := time.Now().Add(-*flagOlderThan)

			var stale []location.Entry
			err = d.Contents(ctx, func(e location.Entry) error {
				if e.Meta == nil {
					return nil
				}
				lastUsed, ok, lastUsedErr := e.Meta.LastUsed()
				if lastUsedErr != nil {
					o.Warn(fmt.Sprintf("%s: reading last-used: %v", e.Key.Hex(), lastUsedErr))
					return nil
				}
				if !ok || lastUsed.After(cutoff) {
					return nil
				}
				stale = append(stale, e)
				return nil
			})
			if err != nil {
				return fmt.Errorf("scanning %s: %w", cfg.StorageRoot, err)
			}

			deleted := 0
			for _, e := range stale {
				if *flagDryRun {
					o.Println(e.Key.Hex())
					continue
				}

				ok, delErr := d.Delete(ctx, e.Key)
				if delErr != nil {
					o.Warn(fmt.Sprintf("%s: delete failed: %v", e.Key.Hex(), delErr))
					continue
				}
				if ok {
					deleted++
					o.Println(e.Key.Hex())
				}
			}

			if !*flagDryRun {
				o.Printf("deleted %d of %d stale entries\n", deleted, len(stale))
			}
			return nil
		},
	}
}
