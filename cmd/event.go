package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/dental-credit/internal/realtime"
	"github.com/frahmantamala/dental-credit/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Change event commands",
	Long:  `Inspect the archived change events behind the realtime streams`,
}

var replayEventCmd = &cobra.Command{
	Use:   "replay",
	Short: "Print archived change events",
	Long: `Print the change events archived since a point in time, oldest first, one JSON object per line.
With --fold the events of one table are merged the way realtime clients merge them and only the surviving records are printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := replayEvents(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	replaySince time.Duration
	replayTable string
	replayFold  bool
)

func replayEvents(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	if cfg.Realtime.ArchiveTable == "" {
		return errors.New("realtime.archive_table is not configured")
	}
	if replayFold && replayTable == "" {
		return errors.New("--fold needs --table")
	}
	lg := logger.LoggerWrapper()

	ddb, err := realtime.NewDynamoClient(ctx, cfg.Realtime.ArchiveRegion, cfg.Realtime.ArchiveEndpoint)
	if err != nil {
		return err
	}
	archive := realtime.NewDynamoArchive(ddb, cfg.Realtime.ArchiveTable, lg)

	since := time.Now().Add(-replaySince)
	changes, err := archive.Since(ctx, since)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if replayFold {
		view := realtime.NewView(replayTable)
		for _, ev := range changes {
			view.Apply(ev)
		}
		entries := view.Entries()
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		lg.Info("replay folded", "since", since, "events", len(changes), "records", len(entries))
		return nil
	}

	printed := 0
	for _, ev := range changes {
		if replayTable != "" && ev.Table != replayTable {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
		printed++
	}
	lg.Info("replay complete", "since", since, "events", printed)
	return nil
}

func init() {
	replayEventCmd.Flags().DurationVar(&replaySince, "since", time.Hour, "How far back to replay")
	replayEventCmd.Flags().StringVar(&replayTable, "table", "", "Only print changes of this table")
	replayEventCmd.Flags().BoolVar(&replayFold, "fold", false, "Print the latest state of each record instead of every change")

	eventCmd.AddCommand(replayEventCmd)

	rootCmd.AddCommand(eventCmd)
}
