package review

import (
	"sort"

	"github.com/flathub-infra/buildhooks/internal/appstream"
	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/flatref"
	"github.com/flathub-infra/buildhooks/internal/ostree"
)

// CollectReviewItems extracts the catalog excerpt moderators see for
// every app in the build. Only the primary x86_64 ref of each app is
// read; other architectures carry the same metadata and are not
// reviewed separately. Load failures become blocking diagnostics.
func CollectReviewItems(repo ostree.Repo, refs map[string]string, result *CheckResult) map[string]backend.ReviewItem {
	items := map[string]backend.ReviewItem{}

	refstrings := make([]string, 0, len(refs))
	for refstring := range refs {
		refstrings = append(refstrings, refstring)
	}
	sort.Strings(refstrings)

	for _, refstring := range refstrings {
		ref, err := flatref.Parse(refstring)
		if err != nil || !flatref.IsPrimary(refstring) || ref.Arch != "x86_64" {
			continue
		}
		appID := flatref.AppID(refstring)

		item, reason := loadReviewItem(repo, refs[refstring], appID)
		if reason != "" {
			result.Diagnostics = append(result.Diagnostics,
				newFailedToLoadAppstream(appstream.CatalogPath(appID), reason, refstring))
			continue
		}
		items[appID] = item
	}

	return items
}

func loadReviewItem(repo ostree.Repo, checksum, appID string) (backend.ReviewItem, string) {
	commit, err := repo.ReadCommit(checksum)
	if err != nil {
		return backend.ReviewItem{}, err.Error()
	}

	compressed, ok, err := ostree.ReadFileAt(repo, commit.Root, appstream.CatalogPath(appID))
	if err != nil {
		return backend.ReviewItem{}, err.Error()
	}
	if !ok {
		return backend.ReviewItem{}, "file does not exist"
	}
	content, err := gunzip(compressed)
	if err != nil {
		return backend.ReviewItem{}, err.Error()
	}
	doc, err := appstream.Load(content)
	if err != nil {
		return backend.ReviewItem{}, err.Error()
	}
	component, err := doc.Component()
	if err != nil {
		return backend.ReviewItem{}, err.Error()
	}

	return backend.ReviewItem{
		Name:                 appstream.ChildText(component, "name"),
		Summary:              appstream.ChildText(component, "summary"),
		DeveloperName:        appstream.ChildText(component, "developer_name"),
		ProjectLicense:       appstream.ChildText(component, "project_license"),
		ProjectGroup:         appstream.ChildText(component, "project_group"),
		CompulsoryForDesktop: appstream.ChildText(component, "compulsory_for_desktop"),
	}, ""
}
