package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/lint"
	"github.com/flathub-infra/buildhooks/internal/ostree"
)

const validationsFailed = "One or more validations failed."
const moderatorReview = "Some of the changes in this build require review by a moderator."

// Reviewer runs the review check for one build: validate, collect the
// moderation excerpts, ask the backend for a verdict, and report the
// resulting status to flat-manager.
type Reviewer struct {
	Repo     ostree.Repo
	Services backend.Services
	Linter   *lint.Validator

	BuildID int64
	JobID   int64

	// ObserveOnly downgrades validation failures to a passing status
	// with warnings, so new checks can soak without blocking builds.
	ObserveOnly bool

	Log zerolog.Logger
}

// Run executes the whole review workflow. Validation failures are a
// business outcome reported to the backend, not an error; only
// infrastructure failures return one.
func (r *Reviewer) Run(ctx context.Context) error {
	refs, err := r.Repo.ListRefs()
	if err != nil {
		return fmt.Errorf("listing refs: %w", err)
	}
	r.Log.Info().Int("refs", len(refs)).Msg("reviewing build")

	build, err := r.Services.Build(ctx)
	if err != nil {
		return err
	}

	result := &CheckResult{}

	validation := &Validation{Repo: r.Repo, Services: r.Services, Linter: r.Linter, Log: r.Log}
	if err := validation.ValidateBuild(ctx, build, refs, result); err != nil {
		return err
	}
	if result.HasBlockingFailure() {
		return r.report(ctx, build, r.failureStatus(), result)
	}

	items := CollectReviewItems(r.Repo, refs, result)
	if result.HasBlockingFailure() {
		return r.report(ctx, build, r.failureStatus(), result)
	}

	response, err := r.Services.SubmitReviewRequest(ctx, &backend.ReviewRequest{
		BuildID:     r.BuildID,
		JobID:       r.JobID,
		AppMetadata: items,
	})
	if err != nil {
		return err
	}

	status := backend.Pending()
	if response.RequiresReview {
		status = backend.ReviewRequired(moderatorReview)
	}
	return r.report(ctx, build, status, result)
}

func (r *Reviewer) failureStatus() backend.CheckStatus {
	if r.ObserveOnly {
		return backend.PassedWithWarnings(validationsFailed)
	}
	return backend.Failed(validationsFailed)
}

// report posts the check status, then sends the best-effort build
// notification. Notification failure never masks the primary result.
func (r *Reviewer) report(ctx context.Context, build *backend.BuildExtended, status backend.CheckStatus, result *CheckResult) error {
	r.Log.Info().Str("status", status.Status).Int("diagnostics", len(result.Diagnostics)).Msg("review finished")

	serialized, err := result.Serialize()
	if err != nil {
		return err
	}
	if err := r.Services.SetCheckStatus(ctx, status, serialized); err != nil {
		return err
	}

	r.notify(ctx, build, result)
	return nil
}

func (r *Reviewer) notify(ctx context.Context, build *backend.BuildExtended, result *CheckResult) {
	if len(result.Diagnostics) == 0 {
		return
	}
	if build.Build.AppID == nil {
		// Can't address an email without knowing the app.
		return
	}

	diagnostics, err := json.Marshal(result.Diagnostics)
	if err != nil {
		r.Log.Warn().Err(err).Msg("skipping build notification")
		return
	}
	err = r.Services.PostBuildNotification(ctx, &backend.BuildNotificationRequest{
		AppID:       *build.Build.AppID,
		BuildID:     r.BuildID,
		BuildRepo:   build.Build.Repo,
		Diagnostics: diagnostics,
	})
	if err != nil {
		r.Log.Warn().Err(err).Msg("failed to send build notification")
	}
}
