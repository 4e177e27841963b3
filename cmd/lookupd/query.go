package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lookupd/internal/config"
	"lookupd/internal/lookup"
)

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query --table NAME KEY...",
		Short: "Look up keys in a configured table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("table")
			output, _ := cmd.Flags().GetString("output")
			p, err := newPrinter(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			ref, reg, err := openOne(cfg, name, a)
			if err != nil {
				return err
			}
			defer reg.Close()

			type result struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			results := make([]result, len(args))
			for i, k := range args {
				results[i] = result{Key: k, Value: ref.LookupText(k)}
			}

			if p.format == "json" {
				return p.json(results)
			}
			rows := make([][]string, len(results))
			for i, r := range results {
				rows[i] = []string{r.Key, r.Value}
			}
			p.table([]string{"KEY", "VALUE"}, rows)
			return nil
		},
	}
	cmd.Flags().String("table", "", "table name (required)")
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

// openOne loads only the named table from cfg.
func openOne(cfg *config.Config, name string, a *app) (*lookup.Ref, *lookup.Registry, error) {
	for _, tc := range cfg.LookupTables() {
		if tc.Name != name {
			continue
		}
		reg := lookup.NewRegistry(lookup.Config{Logger: a.logger})
		ref, err := reg.Open(tc)
		if err != nil {
			reg.Close()
			return nil, nil, err
		}
		return ref, reg, nil
	}
	return nil, nil, fmt.Errorf("%w: no lookup table named %q", lookup.ErrConfig, name)
}
