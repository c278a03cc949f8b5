package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/index"
	"github.com/Aman-CERP/batchidx/internal/output"
	"github.com/Aman-CERP/batchidx/internal/provider"
)

// hitsResult is the JSON shape of get and query results.
type hitsResult struct {
	Index      string  `json:"index"`
	Generation uint64  `json:"generation"`
	Count      int     `json:"count"`
	IDs        []int64 `json:"ids"`
}

type readOptions struct {
	index  indexFlags
	json   bool
	single bool
	limit  int
}

func (o *readOptions) register(cmd *cobra.Command) {
	o.index.register(cmd)
	cmd.Flags().BoolVar(&o.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&o.single, "single", false, "Expect at most one hit; fail if there are more")
	cmd.Flags().IntVar(&o.limit, "limit", 0, "Print at most this many IDs (0: all)")
}

func newGetCmd(st *state) *cobra.Command {
	var (
		opts      readOptions
		valueType string
	)

	cmd := &cobra.Command{
		Use:   "get KEY VALUE",
		Short: "Find entities with an exact key/value match",
		Long: `Print the IDs of entities holding exactly VALUE under KEY.

VALUE is parsed according to --type. With "auto", numbers and true/false
are recognised and everything else is a string.`,
		Example: `  batchidx get --index people name Ada
  batchidx get --index people age 36
  batchidx get --index people zip 02134 --type string`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[1], valueType)
			if err != nil {
				return err
			}
			return st.readIndex(cmd, opts, func(idx *index.Index) (*index.Hits, error) {
				return idx.Get(cmd.Context(), args[0], value)
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&valueType, "type", "t", "auto", "Value type: auto, string, number, bool")
	return cmd
}

// parseValue converts a command-line value according to typ.
func parseValue(s, typ string) (any, error) {
	switch typ {
	case "string":
		return s, nil
	case "number":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("%q is not a number", s), err)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("%q is not a bool", s), err)
		}
		return b, nil
	case "auto", "":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		if s == "true" || s == "false" {
			return s == "true", nil
		}
		return s, nil
	default:
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown value type %q", typ), nil)
	}
}

// readIndex opens the selected index, runs read and prints its hits.
func (st *state) readIndex(cmd *cobra.Command, opts readOptions, read func(*index.Index) (*index.Hits, error)) error {
	ref, err := opts.index.ref()
	if err != nil {
		return err
	}
	return st.withProvider(cmd.Context(), "", func(p *provider.Provider) error {
		idx, err := p.Index(ref.Kind, ref.Name)
		if err != nil {
			return err
		}
		hits, err := read(idx)
		if err != nil {
			return err
		}
		defer func() { _ = hits.Close() }()

		res := hitsResult{Index: ref.String(), Generation: hits.Generation(), IDs: []int64{}}
		if opts.single {
			id, found, err := hits.Single()
			if err != nil {
				return err
			}
			if found {
				res.IDs = append(res.IDs, id)
			}
		} else {
			ids, err := hits.All()
			if err != nil {
				return err
			}
			res.IDs = append(res.IDs, ids...)
		}
		res.Count = len(res.IDs)
		if opts.limit > 0 && len(res.IDs) > opts.limit {
			res.IDs = res.IDs[:opts.limit]
		}

		out := output.New(cmd.OutOrStdout())
		if opts.json {
			return out.JSON(res)
		}
		out.IDs(res.IDs)
		return nil
	})
}
