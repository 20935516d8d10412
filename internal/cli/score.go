package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/habitsync/internal/engine"
	"github.com/roach88/habitsync/internal/model"
)

// ScoreRow is one scored entity in display order.
type ScoreRow struct {
	ID    model.EntityID `json:"id"`
	Name  string         `json:"name"`
	Score float64        `json:"score"`
}

// ScoreReport holds every innerface and state score.
type ScoreReport struct {
	Innerfaces []ScoreRow `json:"innerfaces"`
	States     []ScoreRow `json:"states"`
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Show innerface and state scores",
		Long: `Show the derived score of every innerface and state, in the
user's display order.

Example:
  habitsync score
  habitsync score --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(rootOpts, cmd)
		},
	}
}

func runScore(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	report, err := buildScoreReport(commandContext(cmd), a.engine)
	if err != nil {
		return engineError("failed to compute scores", err)
	}
	return newFormatter(cmd, opts).Emit(report, func(w io.Writer) {
		writeScoreSection(w, "Innerfaces", report.Innerfaces)
		writeScoreSection(w, "States", report.States)
	})
}

func buildScoreReport(ctx context.Context, eng *engine.Engine) (ScoreReport, error) {
	innerfaces, err := scoreRows(ctx, eng, model.KindInnerfaces)
	if err != nil {
		return ScoreReport{}, err
	}
	states, err := scoreRows(ctx, eng, model.KindStates)
	if err != nil {
		return ScoreReport{}, err
	}
	return ScoreReport{Innerfaces: innerfaces, States: states}, nil
}

func scoreRows(ctx context.Context, eng *engine.Engine, kind model.Kind) ([]ScoreRow, error) {
	rows, err := eng.EntitiesInOrder(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]ScoreRow, 0, len(rows))
	for _, row := range rows {
		score, err := eng.Score(ctx, kind, row.RowID())
		if err != nil {
			return nil, err
		}
		out = append(out, ScoreRow{ID: row.RowID(), Name: row.RowName(), Score: score})
	}
	return out, nil
}

func writeScoreSection(w io.Writer, title string, rows []ScoreRow) {
	fmt.Fprintln(w, title)
	if len(rows) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%.2f\n", r.ID, r.Name, r.Score)
	}
	_ = tw.Flush()
}
