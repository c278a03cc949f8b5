package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/output"
	"github.com/Aman-CERP/batchidx/internal/preflight"
)

type doctorReport struct {
	DataDir string                  `json:"data_dir"`
	Status  string                  `json:"status"`
	Checks  []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(st *state) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the data directory can take a load",
		Long: `Check free disk space, write access, the open file limit and the
directory lock, and look for index files no backend recognizes.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := preflight.New()
			results := checker.RunAll(cmd.Context(), st.cfg.DataDir)
			report := doctorReport{
				DataDir: st.cfg.DataDir,
				Status:  checker.SummaryStatus(results),
				Checks:  results,
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if err := out.JSON(report); err != nil {
					return err
				}
			} else {
				printChecks(out, results, verbose)
				out.Newline()
				out.Statusf("", "Status: %s", report.Status)
			}

			if checker.HasCriticalFailures(results) {
				return amerrors.New(amerrors.ErrCodeInternal,
					fmt.Sprintf("data directory %s is not ready", st.cfg.DataDir), nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show hints for failed checks")
	return cmd
}

func printChecks(out *output.Writer, results []preflight.CheckResult, verbose bool) {
	for _, r := range results {
		switch r.Status {
		case preflight.StatusPass:
			out.Successf("%s: %s", r.Name, r.Message)
		case preflight.StatusWarn:
			out.Warningf("%s: %s", r.Name, r.Message)
		default:
			out.Errorf("%s: %s", r.Name, r.Message)
		}
		if verbose && r.Details != "" {
			out.Status("", r.Details)
		}
	}
}
