package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/presentation/tui"
	"github.com/aretw0/rewind/internal/script"
	"github.com/aretw0/rewind/internal/validator"
	"github.com/spf13/cobra"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <script.yaml>",
	Short: "Play a scripted editing session",
	Long: `Builds a workspace from the script's schema and entities, plays its steps and
prints the resulting history, either as a timeline or as a markdown report.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, _ := cmd.Flags().GetBool("report")
		trace, _ := cmd.Flags().GetBool("trace")
		out := cmd.OutOrStdout()

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(out)
		}

		var observer io.Writer
		if trace {
			observer = out
		}
		sc, ws, playErr := playScript(cmd, args[0], observer)
		if ws == nil {
			return playErr
		}
		defer ws.Close()

		if !report {
			tui.RenderTimeline(out, ws.Timeline())
			return playErr
		}

		title := sc.Name
		if title == "" {
			title = args[0]
		}
		md := tui.Report(title, ws.View())
		if tui.IsTerminal(os.Stdout) {
			if rendered, err := tui.NewRenderer()(md); err == nil {
				md = rendered
			}
		}
		fmt.Fprint(out, md)
		return playErr
	},
}

// playScript loads, validates and plays the script at path.
// The workspace is returned even when a step fails so the partial history can be shown.
func playScript(cmd *cobra.Command, path string, trace io.Writer) (*script.Script, *rewind.Workspace, error) {
	sc, err := script.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if err := validator.ValidateScript(sc); err != nil {
		return nil, nil, err
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		sc.Limit = limit
	}

	ws, err := sc.NewWorkspace(rewind.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	steps, err := sc.DecodeSteps()
	if err != nil {
		ws.Close()
		return nil, nil, err
	}

	opts := []script.Option{script.WithLogger(logger)}
	if trace != nil {
		opts = append(opts, script.WithObserver(func(r script.Result) {
			fmt.Fprintf(trace, "%3d  %-40s depth=%d current=%d\n", r.Step.Index, r.Step, r.Depth, r.Current)
		}))
	}
	_, err = script.NewPlayer(ws, opts...).Play(cmd.Context(), steps)
	return sc, ws, err
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Bool("report", false, "Print a markdown report instead of the timeline")
	playCmd.Flags().Bool("trace", false, "Print the history position after every step")
	playCmd.Flags().Int("limit", 0, "Override the script's history limit")
}
