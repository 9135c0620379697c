package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/config"
	"github.com/flathub-infra/buildhooks/internal/ostree"
	"github.com/flathub-infra/buildhooks/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Rewrite catalog entries with current storefront facts",
	Long: `Rewrites the appstream catalog entry of every ref in the build
repository with the app's current verification, pricing and build-log
facts, and re-derives the commit's subsets and token-type metadata.
Refs whose content would not change are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, repo, err := setup(cmd)
		if err != nil {
			return err
		}

		publisher := &publish.Publisher{
			Repo:      repo,
			Services:  newClient(cfg),
			Republish: cfg.IsRepublish,
			Log:       log,
		}
		return publisher.Run(cmd.Context())
	},
}

// setup loads the config and opens the build repository; shared by the
// publish and review commands.
func setup(cmd *cobra.Command) (*config.Configuration, ostree.Repo, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	repoPath, _ := cmd.Flags().GetString("repo")
	repo, err := ostree.OpenFileRepo(repoPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, repo, nil
}

func newClient(cfg *config.Configuration) *backend.Client {
	return backend.NewClient(
		cfg.BackendURL,
		cfg.FlatManagerURL,
		cfg.FlatManagerToken,
		cfg.JobID,
		cfg.BuildID,
		backend.WithLogger(log),
	)
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
