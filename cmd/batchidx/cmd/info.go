package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/batchidx/internal/provider"
	"github.com/Aman-CERP/batchidx/internal/store"
	"github.com/Aman-CERP/batchidx/internal/ui"
)

func newInfoCmd(st *state) *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the indexes in the data directory",
		Long: `List every index in the data directory with its backend, committed
entry and entity counts, and size on disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withProvider(cmd.Context(), "", func(p *provider.Provider) error {
				infos, err := collectInfo(cmd, p)
				if err != nil {
					return err
				}
				r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || !ui.IsTTY(cmd.OutOrStdout()))
				if jsonOutput {
					return r.RenderJSON(infos)
				}
				return r.Render(st.cfg.DataDir, infos)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")
	return cmd
}

func collectInfo(cmd *cobra.Command, p *provider.Provider) ([]ui.IndexInfo, error) {
	refs, err := p.Existing()
	if err != nil {
		return nil, err
	}
	infos := make([]ui.IndexInfo, 0, len(refs))
	for _, ref := range refs {
		idx, err := p.Index(ref.Kind, ref.Name)
		if err != nil {
			return nil, err
		}
		stats, err := idx.Stats(cmd.Context())
		if err != nil {
			return nil, err
		}
		base := p.Path(ref)
		bt := store.DetectBackend(base)
		infos = append(infos, ui.IndexInfo{
			Index:      ref.String(),
			Backend:    stats.Backend,
			Path:       store.BackendPath(base, bt),
			SizeBytes:  store.SizeOnDisk(base, bt),
			Generation: stats.Generation,
			Entries:    stats.Entries,
			Entities:   stats.Entities,
		})
	}
	return infos, nil
}
