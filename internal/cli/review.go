package cli

import (
	"github.com/spf13/cobra"

	"github.com/flathub-infra/buildhooks/internal/lint"
	"github.com/flathub-infra/buildhooks/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Validate a build and report its review status",
	Long: `Runs the validation battery over every primary ref of the build,
collects the moderation excerpts, asks the backend whether a human
review is needed, and reports the resulting check status to
flat-manager.

A failed validation is a business outcome reported to the backend; the
command only exits non-zero on infrastructure failures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, repo, err := setup(cmd)
		if err != nil {
			return err
		}

		linter := lint.DefaultValidator()
		linter.Timeout = cfg.LintTimeout

		reviewer := &review.Reviewer{
			Repo:        repo,
			Services:    newClient(cfg),
			Linter:      linter,
			BuildID:     cfg.BuildID,
			JobID:       cfg.JobID,
			ObserveOnly: cfg.ValidationObserveOnly,
			Log:         log,
		}
		return reviewer.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
