package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pdom/internal/export"
	"pdom/internal/ingest"
	"pdom/internal/pdom"
)

var exportCmd = &cobra.Command{
	Use:   "export <out.mp>",
	Short: "Write a portable msgpack snapshot of the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			phase := s.timer.Begin("export")
			snap, err := export.Build(ix)
			if err != nil {
				return err
			}
			if err := export.WriteFile(s.fs, args[0], snap); err != nil {
				return err
			}
			s.timer.End(phase, args[0])
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d files, %d bindings to %s\n",
				okColor.Sprint("exported"), len(snap.Files), len(snap.Bindings), pathColor.Sprint(args[0]))
			return err
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <snapshot.mp>",
	Short: "Replay a snapshot into the index",
	Long: `Import applies a snapshot written by export. Files in the snapshot replace
their current content; other files are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			phase := s.timer.Begin("import")
			snap, err := export.ReadFile(s.fs, args[0])
			if err != nil {
				return err
			}
			p, err := snap.Provider()
			if err != nil {
				return err
			}
			sum, err := ingest.Apply(cmd.Context(), ix, p)
			s.timer.End(phase, fmt.Sprintf("%d files", sum.Files))
			if err != nil {
				return err
			}
			if err := ix.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d files, %d names\n",
				okColor.Sprint("imported"), sum.Files, sum.Names)
			return err
		})
	},
}
