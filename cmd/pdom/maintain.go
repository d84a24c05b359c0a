package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"pdom/internal/pdom"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <path...>",
	Short: "Delete every name parsed from the given files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			phase := s.timer.Begin("invalidate")
			total := 0
			for _, path := range args {
				n, err := ix.InvalidateFile(path)
				if err != nil {
					s.timer.End(phase, "")
					return err
				}
				total += n
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %d names\n", pathColor.Sprint(pdom.NormalizePath(path)), n)
			}
			s.timer.End(phase, fmt.Sprintf("%d names", total))
			return ix.Flush()
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the name lists are consistent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			phase := s.timer.Begin("check")
			err := ix.Check(cmd.Context())
			s.timer.End(phase, "")

			var cerr *pdom.CheckError
			if errors.As(err, &cerr) {
				for _, p := range cerr.Problems {
					fmt.Fprintln(cmd.OutOrStdout(), errorColor.Sprint("problem: ")+p.Error())
				}
				return fmt.Errorf("%d problems found", len(cerr.Problems))
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint("ok"))
			return err
		})
	},
}

var statsMetrics bool

func init() {
	statsCmd.Flags().BoolVar(&statsMetrics, "metrics", false, "also print the session's Prometheus metrics")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts and allocator counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(func(s *session, ix *pdom.Index) error {
			st, err := ix.Stats()
			if err != nil {
				return err
			}
			t := newTable("STAT", "VALUE").color(0, dimColor)
			t.add("store", s.storeName())
			t.add("files", fmt.Sprint(st.Files))
			t.add("bindings", fmt.Sprint(st.Bindings))
			t.add("size", fmt.Sprint(st.Store.Size))
			t.add("in use", fmt.Sprint(st.Store.InUse))
			t.add("mallocs", fmt.Sprint(st.Store.Mallocs))
			t.add("frees", fmt.Sprint(st.Store.Frees))
			t.add("reused", fmt.Sprint(st.Store.Reused))
			if err := t.write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if !statsMetrics {
				return nil
			}
			families, err := s.registry.Gather()
			if err != nil {
				return err
			}
			enc := expfmt.NewEncoder(cmd.OutOrStdout(), expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range families {
				if err := enc.Encode(mf); err != nil {
					return err
				}
			}
			return nil
		})
	},
}
