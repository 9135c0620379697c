package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/lint"
	"github.com/flathub-infra/buildhooks/internal/ostree"
	"github.com/flathub-infra/buildhooks/internal/review"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a build locally and print the diagnostics",
	Long: `Runs the validation battery over the build repository without
talking to any backend, and prints the diagnostics as JSON. Apps are
treated as proprietary, so the build-log policy check is skipped.

The exit code does not reflect validation findings; only failures to
read the repository or to run the external validator are fatal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, _ := cmd.Flags().GetString("repo")
		repo, err := ostree.OpenFileRepo(repoPath)
		if err != nil {
			return err
		}
		refs, err := repo.ListRefs()
		if err != nil {
			return err
		}

		result := &review.CheckResult{}
		validation := &review.Validation{
			Repo:     repo,
			Services: backend.Local{},
			Linter:   lint.DefaultValidator(),
			Log:      log,
		}
		stop := startSpinner("validating build")
		err = validation.ValidateBuild(cmd.Context(), nil, refs, result)
		stop()
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
