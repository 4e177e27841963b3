package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lookupd/internal/lookup"
)

// tableSummary is the check report for one file.
type tableSummary struct {
	File     string `json:"file"`
	OK       bool   `json:"ok"`
	Kind     string `json:"kind,omitempty"`
	KeyType  string `json:"keyType,omitempty"`
	Members  int    `json:"members"`
	Distinct int    `json:"distinct"`
	Nomatch  string `json:"nomatch,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Error    string `json:"error,omitempty"`
	Rows     []row  `json:"rows,omitempty"`
}

type row struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func newCheckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate lookup table files without loading a configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			dump, _ := cmd.Flags().GetBool("dump")
			p, err := newPrinter(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			summaries := make([]tableSummary, 0, len(args))
			var failed []error
			for _, file := range args {
				s, err := checkFile(file, dump)
				if err != nil {
					failed = append(failed, err)
					a.logger.Debug("lookup table check failed", "file", file, "error", err)
				}
				summaries = append(summaries, s)
			}

			if p.format == "json" {
				if err := p.json(summaries); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(summaries))
				for _, s := range summaries {
					status := "ok"
					detail := s.Warning
					if !s.OK {
						status = "FAIL"
						detail = s.Error
					}
					rows = append(rows, []string{
						s.File, status, s.Kind, s.KeyType,
						strconv.Itoa(s.Members), strconv.Itoa(s.Distinct), detail,
					})
				}
				p.table([]string{"FILE", "STATUS", "KIND", "KEY", "MEMBERS", "DISTINCT", "DETAIL"}, rows)
				for _, s := range summaries {
					if len(s.Rows) == 0 {
						continue
					}
					_, _ = fmt.Fprintf(p.w, "\n%s:\n", s.File)
					kv := make([][]string, len(s.Rows))
					for i, r := range s.Rows {
						kv[i] = []string{r.Key, r.Value}
					}
					p.table([]string{"KEY", "VALUE"}, kv)
				}
			}

			if len(failed) > 0 {
				return fmt.Errorf("%d of %d lookup tables invalid: %w", len(failed), len(args), errors.Join(failed...))
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	cmd.Flags().Bool("dump", false, "also print every row in key order")
	return cmd
}

// checkFile reads and builds one table the same way a reload does.
func checkFile(file string, dump bool) (tableSummary, error) {
	s := tableSummary{File: file}
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	doc, err := lookup.ReadFile(file)
	if err != nil {
		s.Error = err.Error()
		return s, err
	}
	t, err := lookup.Build(name, doc)
	if err != nil {
		s.Error = err.Error()
		return s, err
	}

	s.OK = true
	s.Kind = t.Kind().String()
	s.KeyType = t.KeyType().String()
	s.Members = t.Len()
	s.Distinct = t.Distinct()
	if v, ok := t.Default(); ok {
		s.Nomatch = v
	}
	if declared, ok := t.TypeFallback(); ok {
		s.Warning = fmt.Sprintf("unknown type %q treated as string", declared)
	}
	if dump {
		t.Each(func(k, v string) bool {
			s.Rows = append(s.Rows, row{Key: k, Value: v})
			return true
		})
	}
	return s, nil
}
