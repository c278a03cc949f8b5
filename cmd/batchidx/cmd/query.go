package cmd

import (
	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/index"
	"github.com/Aman-CERP/batchidx/internal/store"
)

type queryOptions struct {
	read  readOptions
	key   string
	min   float64
	max   float64
	where string
}

func newQueryCmd(st *state) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query [TEXT]",
		Short: "Run a backend query against an index",
		Long: `Print the IDs of entities matching a query.

TEXT is interpreted by the index backend:
  memory, badger  wildcard pattern ('*', '?'); "key:pattern" without --key
  bleve           wildcard pattern with --key, bleve query string without
  sqlite          FTS5 match expression

--min/--max run a numeric range query on --key instead. --where passes an
SQL condition on the entries table
columns (key, sval, nval; sqlite only).`,
		Example: `  batchidx query --index people --key name 'Ad*'
  batchidx query --index people 'name:Ad* age:>30'
  batchidx query --index people --key age --min 18 --max 65
  batchidx query --index people --where "key = 'name' AND sval LIKE 'A%'"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(cmd, opts, args)
			if err != nil {
				return err
			}
			return st.readIndex(cmd, opts.read, func(idx *index.Index) (*index.Hits, error) {
				if opts.key != "" {
					return idx.QueryKey(cmd.Context(), opts.key, q)
				}
				return idx.Query(cmd.Context(), q)
			})
		},
	}

	opts.read.register(cmd)
	cmd.Flags().StringVar(&opts.key, "key", "", "Restrict the query to one property key")
	cmd.Flags().Float64Var(&opts.min, "min", 0, "Lower bound of a numeric range (inclusive)")
	cmd.Flags().Float64Var(&opts.max, "max", 0, "Upper bound of a numeric range (inclusive)")
	cmd.Flags().StringVar(&opts.where, "where", "", "SQL condition (sqlite backend)")
	return cmd
}

// buildQuery turns the flags and arguments into a store query. Exactly one
// of TEXT, a range or --where must be given.
func buildQuery(cmd *cobra.Command, opts queryOptions, args []string) (store.Query, error) {
	ranged := cmd.Flags().Changed("min") || cmd.Flags().Changed("max")
	forms := 0
	for _, set := range []bool{len(args) == 1, ranged, opts.where != ""} {
		if set {
			forms++
		}
	}
	if forms != 1 {
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "give exactly one of TEXT, --min/--max or --where", nil)
	}

	switch {
	case ranged:
		if opts.key == "" {
			return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "--min/--max require --key", nil)
		}
		var r store.NumberRange
		if cmd.Flags().Changed("min") {
			r.Min = &opts.min
		}
		if cmd.Flags().Changed("max") {
			r.Max = &opts.max
		}
		return store.StructuredQuery{Descriptor: r}, nil
	case opts.where != "":
		return store.StructuredQuery{Descriptor: store.Where{Clause: opts.where}}, nil
	default:
		return store.StringQuery{Text: args[0]}, nil
	}
}
