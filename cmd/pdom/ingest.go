package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdom/internal/ingest"
	"pdom/internal/pdom"
	"pdom/internal/ui"
)

var ingestUI string

func init() {
	ingestCmd.Flags().StringVar(&ingestUI, "ui", "off", "show a progress view (auto|on|off)")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.ndjson...]",
	Short: "Replace the names of the files mentioned in parser output",
	Long: `Ingest reads NDJSON name records, one per line, from the given files or
from stdin. Every file named by a record has its previous names invalidated
before the new ones are inserted.`,
	RunE: ingestExecution,
}

func ingestExecution(cmd *cobra.Command, args []string) error {
	useTUI, err := readUIMode(ingestUI)
	if err != nil {
		return err
	}
	return withIndex(func(s *session, ix *pdom.Index) error {
		var readers []io.Reader
		if len(args) == 0 {
			readers = append(readers, cmd.InOrStdin())
		}
		for _, name := range args {
			if name == "-" {
				readers = append(readers, cmd.InOrStdin())
				continue
			}
			f, err := s.fs.Open(name)
			if err != nil {
				return err
			}
			defer f.Close()
			readers = append(readers, f)
		}
		provider := ingest.NewNDJSONReader(io.MultiReader(readers...))

		phase := s.timer.Begin("ingest")
		var sum ingest.Summary
		if useTUI {
			sum, err = ingestWithUI(cmd.Context(), ix, provider)
		} else {
			sum, err = ingest.Apply(cmd.Context(), ix, provider)
		}
		s.timer.End(phase, fmt.Sprintf("%d files", sum.Files))
		if err != nil {
			if sum.Files > 0 {
				err = errors.Join(err, fmt.Errorf("%d files were applied before the failure", sum.Files))
			}
			return err
		}
		if err := ix.Flush(); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d files, %d names (%d replaced)\n",
			okColor.Sprint("ingested"), sum.Files, sum.Names, sum.Removed)
		return err
	})
}

type ingestOutcome struct {
	sum ingest.Summary
	err error
}

func ingestWithUI(ctx context.Context, ix *pdom.Index, p ingest.Provider) (ingest.Summary, error) {
	events := make(chan ingest.Event, 256)
	outcomeCh := make(chan ingestOutcome, 1)

	go func() {
		sum, err := ingest.Apply(ctx, ix, p, ingest.WithProgress(ingest.ChannelSink{Ch: events}))
		outcomeCh <- ingestOutcome{sum: sum, err: err}
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel("ingest", events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep draining so Apply is never blocked on a dead view
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.sum, uiErr
	}
	return outcome.sum, outcome.err
}

// readUIMode resolves --ui; auto enables the view on a terminal.
func readUIMode(value string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "off":
		return false, nil
	case "on":
		return true, nil
	case "auto":
		return isTerminal(os.Stdout), nil
	default:
		return false, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}
