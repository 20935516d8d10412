package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/habitsync/internal/model"
)

// CheckInOptions holds flags for the checkin command.
type CheckInOptions struct {
	*RootOptions
	Down bool
}

// NewCheckInCommand creates the checkin command.
func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckInOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkin <protocol-id>",
		Short: "Check in a protocol",
		Long: `Record one check-in of a protocol. Every target innerface moves by
the protocol's weight, up by default or down with --down.

Example:
  habitsync checkin run
  habitsync checkin run --down`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := 1
			if opts.Down {
				direction = -1
			}
			return recordEntry(opts.RootOptions, cmd, "check-in failed", func(a *app) (model.JournalEntry, error) {
				return a.engine.CheckIn(commandContext(cmd), model.EntityID(args[0]), direction)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Down, "down", false, "move targets down instead of up")
	return cmd
}

// NewQuickCommand creates the quick command.
func NewQuickCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quick <quick-action-id>",
		Short: "Run a quick action",
		Long: `Check in a quick action's protocol in the quick action's direction.

Example:
  habitsync quick skipped-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordEntry(rootOpts, cmd, "quick action failed", func(a *app) (model.JournalEntry, error) {
				return a.engine.RunQuickAction(commandContext(cmd), model.EntityID(args[0]))
			})
		},
	}
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Delta float64
	Note  string
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <innerface-id>",
		Short: "Manually adjust an innerface",
		Long: `Move one innerface by an explicit delta. The edit is journaled like
any check-in.

Example:
  habitsync edit focus --delta 0.5 --note "weekend retreat"
  habitsync edit focus --delta=-1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordEntry(opts.RootOptions, cmd, "manual edit failed", func(a *app) (model.JournalEntry, error) {
				return a.engine.ManualEdit(commandContext(cmd), model.EntityID(args[0]), opts.Delta, opts.Note)
			})
		},
	}

	cmd.Flags().Float64Var(&opts.Delta, "delta", 0, "signed score change (required)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note stored with the entry")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}

// recordEntry runs a journal-writing engine call, pushes the queued change
// if a remote is reachable and prints the entry.
func recordEntry(opts *RootOptions, cmd *cobra.Command, failure string, record func(*app) (model.JournalEntry, error)) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	entry, err := record(a)
	if err != nil {
		return engineError(failure, err)
	}
	a.flush(commandContext(cmd))

	return newFormatter(cmd, opts).Emit(entry, func(w io.Writer) {
		fmt.Fprintf(w, "Recorded %s (%s): %s\n", entry.SourceLabel, entry.ID, formatChanges(entry.Changes))
	})
}

// formatChanges renders deltas as "focus +0.50, stamina +0.50", sorted by id.
func formatChanges(changes map[model.EntityID]float64) string {
	ids := make([]model.EntityID, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s %+.2f", id, changes[id])
	}
	return strings.Join(parts, ", ")
}
