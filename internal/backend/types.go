// Package backend holds the fact types fetched from the flathub backend
// and flat-manager, and the client used to talk to them. The Services
// interfaces are the seam between the pipeline and the network: the live
// HTTP Client implements all of them, the Local stub implements the
// validation subset for offline runs.
package backend

import (
	"context"
	"encoding/json"
)

// VerificationInfo is the backend's verification record for one app.
type VerificationInfo struct {
	Verified            bool    `json:"verified"`
	Timestamp           *string `json:"timestamp"`
	Method              *string `json:"method"`
	Website             *string `json:"website"`
	LoginProvider       *string `json:"login_provider"`
	LoginName           *string `json:"login_name"`
	LoginIsOrganization *bool   `json:"login_is_organization"`
}

// PricingInfo is the backend's pricing record for one app. Both fields
// are nullable non-negative amounts.
type PricingInfo struct {
	RecommendedDonation *int `json:"recommended_donation"`
	MinimumPayment      *int `json:"minimum_payment"`
}

// StorefrontInfo bundles the per-app facts injected at publish time.
// The zero value is what a brand-new app gets.
type StorefrontInfo struct {
	Verification   *VerificationInfo `json:"verification"`
	Pricing        *PricingInfo      `json:"pricing"`
	IsFreeSoftware *bool             `json:"is_free_software"`
}

// Build is flat-manager's record of one build.
type Build struct {
	AppID       *string `json:"app_id"`
	Repo        string  `json:"repo"`
	BuildLogURL *string `json:"build_log_url"`
}

// BuildRef is flat-manager's record of one ref within a build.
type BuildRef struct {
	RefName     string  `json:"ref_name"`
	BuildLogURL *string `json:"build_log_url"`
}

// BuildExtended is the /build/{id}/extended response.
type BuildExtended struct {
	Build     Build      `json:"build"`
	BuildRefs []BuildRef `json:"build_refs"`
}

// RefLogURL returns the build log URL for a specific ref, falling back
// to the build-wide URL. nil when neither is set.
func (b *BuildExtended) RefLogURL(refstring string) *string {
	for _, ref := range b.BuildRefs {
		if ref.RefName == refstring && ref.BuildLogURL != nil {
			return ref.BuildLogURL
		}
	}
	return b.Build.BuildLogURL
}

// CheckStatus is the review-check outcome reported to flat-manager. The
// wire shape matches flat-manager's tagged enum: a status name plus an
// optional human-readable reason.
type CheckStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

const (
	statusPending            = "Pending"
	statusReviewRequired     = "ReviewRequired"
	statusFailed             = "Failed"
	statusPassedWithWarnings = "PassedWithWarnings"
)

// Pending keeps the check open; flat-manager marks it passed when the
// job exits.
func Pending() CheckStatus { return CheckStatus{Status: statusPending} }

// ReviewRequired holds the build for a human moderator.
func ReviewRequired(reason string) CheckStatus {
	return CheckStatus{Status: statusReviewRequired, Reason: reason}
}

// Failed blocks the build.
func Failed(reason string) CheckStatus {
	return CheckStatus{Status: statusFailed, Reason: reason}
}

// PassedWithWarnings surfaces diagnostics without blocking the build.
func PassedWithWarnings(reason string) CheckStatus {
	return CheckStatus{Status: statusPassedWithWarnings, Reason: reason}
}

// ReviewItem is the catalog excerpt a moderator sees for one app.
type ReviewItem struct {
	Name                 *string `json:"name"`
	Summary              *string `json:"summary"`
	DeveloperName        *string `json:"developer_name"`
	ProjectLicense       *string `json:"project_license"`
	ProjectGroup         *string `json:"project_group"`
	CompulsoryForDesktop *string `json:"compulsory_for_desktop"`
}

// ReviewRequest asks the moderation backend whether a build needs a
// human review.
type ReviewRequest struct {
	BuildID     int64                 `json:"build_id"`
	JobID       int64                 `json:"job_id"`
	AppMetadata map[string]ReviewItem `json:"app_metadata"`
}

// ReviewRequestResponse is the moderation backend's verdict.
type ReviewRequestResponse struct {
	RequiresReview bool `json:"requires_review"`
}

// BuildNotificationRequest is the best-effort notification email
// payload. Diagnostics carries the serialized diagnostic list verbatim.
type BuildNotificationRequest struct {
	AppID       string          `json:"app_id"`
	BuildID     int64           `json:"build_id"`
	BuildRepo   string          `json:"build_repo"`
	Diagnostics json.RawMessage `json:"diagnostics"`
}

// ValidationServices is the backend surface the validation pipeline
// needs. The Local implementation satisfies it without network access.
type ValidationServices interface {
	// IsFreeSoftware reports whether an app counts as FOSS, given its id
	// and the license declared in its metadata ("" when undeclared).
	IsFreeSoftware(ctx context.Context, appID, license string) (bool, error)

	// Build fetches the extended build record for the configured build.
	Build(ctx context.Context) (*BuildExtended, error)
}

// Services is the full backend surface used by publish and review runs.
type Services interface {
	ValidationServices

	// StorefrontInfo fetches the per-app publish facts. An unknown app
	// yields the zero StorefrontInfo, not an error.
	StorefrontInfo(ctx context.Context, appID string) (*StorefrontInfo, error)

	// SetCheckStatus reports the review-check outcome for the configured
	// job, attaching the serialized CheckResult.
	SetCheckStatus(ctx context.Context, status CheckStatus, resultsJSON string) error

	// SubmitReviewRequest submits the moderation excerpts and returns
	// the backend's verdict.
	SubmitReviewRequest(ctx context.Context, req *ReviewRequest) (*ReviewRequestResponse, error)

	// PostBuildNotification sends the best-effort notification email.
	PostBuildNotification(ctx context.Context, req *BuildNotificationRequest) error
}
