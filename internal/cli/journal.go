package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/habitsync/internal/model"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Limit int
}

// NewJournalCommand creates the journal command and its delete subcommand.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journal entries",
		Long: `List journal entries oldest first. --limit keeps only the most
recent entries.

Example:
  habitsync journal
  habitsync journal --limit 20
  habitsync journal delete e-0001`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the N most recent entries (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <entry-id>",
		Short:         "Delete a journal entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalDelete(rootOpts, cmd, args[0])
		},
	})
	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeApp(a)

	entries, err := a.engine.Journal(commandContext(cmd))
	if err != nil {
		return engineError("failed to read journal", err)
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}

	return newFormatter(cmd, opts.RootOptions).Emit(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "Journal is empty.")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %s  %-17s  %s  %s\n",
				e.Timestamp.UTC().Format(time.RFC3339), e.ID, e.Type, e.SourceLabel, formatChanges(e.Changes))
		}
	})
}

func runJournalDelete(opts *RootOptions, cmd *cobra.Command, id string) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	removed, err := a.engine.DeleteJournalEntry(commandContext(cmd), id)
	if err != nil {
		return engineError("failed to delete journal entry", err)
	}
	if !removed {
		return NewExitError(CodeUnknownEntity, fmt.Sprintf("journal entry %q not found", id))
	}
	a.flush(commandContext(cmd))

	return newFormatter(cmd, opts).Emit(map[string]string{"deleted": id}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %s\n", id)
	})
}
