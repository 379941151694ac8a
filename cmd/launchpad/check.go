package main

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jask/launchpad/internal/progress"
	"github.com/jask/launchpad/internal/shell"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the startup sequence without the UI and report each phase",
	Long: `check runs the same bootstrap as the shell, prints progress as it
arrives and a table of phase results, then shuts down. It exits non-zero
when the outcome is fatal.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := shell.New(shell.Options{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()})
	if err != nil {
		return err
	}
	defer stopApp(app)

	events, err := app.Progress(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for e := range events {
			if e.Terminal() {
				continue
			}
			fmt.Fprintf(out, "[%3.0f%%] %s\n", e.Update.Fraction*100, e.Update.Message)
		}
	}()

	if err := app.Start(ctx, nil); err != nil {
		return err
	}
	outcome, err := app.Wait(ctx)
	if err != nil {
		return err
	}
	<-printed

	printPhases(out, outcome)
	fmt.Fprintln(out, outcome.String())
	if outcome.Kind == progress.Fatal {
		return errStartupFailed
	}
	return nil
}

func printPhases(w io.Writer, o progress.Outcome) {
	table := tablewriter.NewWriter(w)
	table.Header("Phase", "Status", "Critical", "Elapsed", "Error")
	for _, p := range o.Phases {
		errText := ""
		if p.Err != nil {
			errText = p.Err.Error()
		}
		critical := ""
		if p.Critical {
			critical = "yes"
		}
		table.Append([]string{p.Name, p.Status, critical, p.Elapsed.Round(time.Millisecond).String(), errText})
	}
	table.Render()
}
