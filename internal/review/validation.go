package review

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/flathub-infra/buildhooks/internal/appstream"
	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/flatref"
	"github.com/flathub-infra/buildhooks/internal/lint"
	"github.com/flathub-infra/buildhooks/internal/ostree"
)

// MirrorPrefix is where mirrored screenshot thumbnails must live.
const MirrorPrefix = "https://dl.flathub.org/media/"

const desktopSuffix = ".desktop"

// Validation runs the whole validation battery over a build. Checks are
// isolated: one check's diagnostic never stops a sibling check, and
// only infrastructure failures (store or subprocess unreachable) abort
// the run.
type Validation struct {
	Repo     ostree.Repo
	Services backend.ValidationServices
	Linter   *lint.Validator
	Log      zerolog.Logger
}

// ValidateBuild validates every primary ref, appending diagnostics to
// result. build may be nil when no build record is available; the
// build-log policy check is skipped in that case.
func (v *Validation) ValidateBuild(ctx context.Context, build *backend.BuildExtended, refs map[string]string, result *CheckResult) error {
	refstrings := make([]string, 0, len(refs))
	for refstring := range refs {
		refstrings = append(refstrings, refstring)
	}
	sort.Strings(refstrings)

	for _, refstring := range refstrings {
		if !flatref.IsPrimary(refstring) {
			continue
		}
		diagnostics, err := v.validatePrimaryRef(ctx, build, refs, refstring, refs[refstring])
		if err != nil {
			return fmt.Errorf("validating %s: %w", refstring, err)
		}
		result.Diagnostics = append(result.Diagnostics, diagnostics...)
	}
	return nil
}

func (v *Validation) validatePrimaryRef(ctx context.Context, build *backend.BuildExtended, refs map[string]string, refstring, checksum string) ([]Diagnostic, error) {
	appID := flatref.AppID(refstring)
	v.Log.Info().Str("ref", refstring).Msg("validating ref")

	commit, err := v.Repo.ReadCommit(checksum)
	if err != nil {
		return nil, err
	}
	root := commit.Root

	// If there is no local 128x128 icon, the appstream files must
	// declare a remote one.
	iconPath := fmt.Sprintf("files/share/app-info/icons/flatpak/128x128/%s.png", appID)
	hasLocalIcon, err := ostree.FileExists(v.Repo, root, iconPath)
	if err != nil {
		return nil, err
	}

	var diagnostics []Diagnostic

	// Check both the current and legacy appstream file locations.
	for _, path := range []string{
		fmt.Sprintf("files/share/appdata/%s.appdata.xml", appID),
		fmt.Sprintf("files/share/metainfo/%s.metainfo.xml", appID),
	} {
		fileDiagnostics, err := v.validateAppstreamFile(ctx, refstring, root, path, hasLocalIcon)
		if err != nil {
			return nil, err
		}
		diagnostics = append(diagnostics, fileDiagnostics...)
	}

	catalogDiagnostics, err := v.validateCatalogFile(ctx, build, refs, refstring, root, hasLocalIcon)
	if err != nil {
		return nil, err
	}
	diagnostics = append(diagnostics, catalogDiagnostics...)

	scanDiagnostics, err := v.scanExecutables(refstring, root)
	if err != nil {
		return nil, err
	}
	diagnostics = append(diagnostics, scanDiagnostics...)

	return diagnostics, nil
}

// validateAppstreamFile checks one exported appstream file. A missing
// file is fine; a present one must parse, pass the external validator,
// and carry the right component identity.
func (v *Validation) validateAppstreamFile(ctx context.Context, refstring, root, path string, hasLocalIcon bool) ([]Diagnostic, error) {
	content, ok, err := ostree.ReadFileAt(v.Repo, root, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	doc, err := appstream.Load(content)
	if err != nil {
		return []Diagnostic{newFailedToLoadAppstream(path, err.Error(), refstring)}, nil
	}

	var diagnostics []Diagnostic

	lintResult, err := v.Linter.Validate(ctx, path, content)
	if err != nil {
		return nil, err
	}
	if !lintResult.Passed() {
		diagnostics = append(diagnostics, newDiagnostic(CategoryAppstreamValidation, refstring, AppstreamValidation{
			Path:   path,
			Stdout: lintResult.Stdout,
			Stderr: lintResult.Stderr,
		}))
	}

	diagnostics = append(diagnostics, v.validateComponent(doc.Root(), refstring, path, hasLocalIcon)...)
	return diagnostics, nil
}

// validateCatalogFile checks the catalog entry, the one software
// centers and the website read. The external validator is not run on
// it; it sometimes produces false positives on catalog files.
func (v *Validation) validateCatalogFile(ctx context.Context, build *backend.BuildExtended, refs map[string]string, refstring, root string, hasLocalIcon bool) ([]Diagnostic, error) {
	appID := flatref.AppID(refstring)
	path := appstream.CatalogPath(appID)

	compressed, ok, err := ostree.ReadFileAt(v.Repo, root, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Diagnostic{newFailedToLoadAppstream(path, "file does not exist", refstring)}, nil
	}
	content, err := gunzip(compressed)
	if err != nil {
		return []Diagnostic{newFailedToLoadAppstream(path, err.Error(), refstring)}, nil
	}
	doc, err := appstream.Load(content)
	if err != nil {
		return []Diagnostic{newFailedToLoadAppstream(path, err.Error(), refstring)}, nil
	}
	component, err := doc.Component()
	if err != nil {
		return []Diagnostic{newFailedToLoadAppstream(path, err.Error(), refstring)}, nil
	}

	diagnostics := v.validateComponent(component, refstring, path, hasLocalIcon)

	screenshotDiagnostics, err := v.validateScreenshots(component, refs, refstring)
	if err != nil {
		return nil, err
	}
	diagnostics = append(diagnostics, screenshotDiagnostics...)

	logDiagnostics, err := v.validateBuildLogURL(ctx, build, component, refstring)
	if err != nil {
		return nil, err
	}
	diagnostics = append(diagnostics, logDiagnostics...)

	return diagnostics, nil
}

// validateComponent runs the identity and icon checks shared by every
// appstream file location.
func (v *Validation) validateComponent(component *etree.Element, refstring, path string, hasLocalIcon bool) []Diagnostic {
	var diagnostics []Diagnostic

	if reason := checkComponentID(component, refstring); reason != "" {
		diagnostics = append(diagnostics, newFailedToLoadAppstream(path, reason, refstring))
	}

	if !hasLocalIcon {
		if appstream.HasRemoteIcon(component) {
			diagnostics = append(diagnostics, newWarning(CategoryNoLocalIcon, refstring, IconNote{AppstreamPath: path}))
		} else {
			diagnostics = append(diagnostics, newDiagnostic(CategoryMissingIcon, refstring, IconNote{AppstreamPath: path}))
		}
	}

	return diagnostics
}

// checkComponentID verifies the component carries exactly one id equal
// to the app id, with the desktop-entry suffix tolerated. Returns a
// reason string, "" when the id is fine.
func checkComponentID(component *etree.Element, refstring string) string {
	ids := component.SelectElements("id")
	switch len(ids) {
	case 1:
	case 0:
		return "Appstream component does not have an ID"
	default:
		return "Appstream component has multiple IDs"
	}

	id := ids[0].Text()
	expected := flatref.AppID(refstring)
	if id != expected && id != expected+desktopSuffix {
		return fmt.Sprintf("Appstream component ID (%s) does not match expected ID (%s)", id, expected)
	}
	return ""
}

// validateScreenshots checks that every declared screenshot has been
// mirrored into the screenshots branch for the ref's architecture.
func (v *Validation) validateScreenshots(component *etree.Element, refs map[string]string, refstring string) ([]Diagnostic, error) {
	shots := appstream.Screenshots(component)
	if len(shots) == 0 {
		return nil, nil
	}

	branch := "screenshots/" + flatref.Arch(refstring)
	branchRoot := ""
	branchMissing := false
	if checksum, ok := refs[branch]; ok {
		commit, err := v.Repo.ReadCommit(checksum)
		if err != nil {
			return nil, err
		}
		branchRoot = commit.Root
	}

	var diagnostics []Diagnostic
	for _, shot := range shots {
		if len(shot.Thumbnails) == 0 {
			if shot.Source != "" {
				diagnostics = append(diagnostics, newDiagnostic(CategoryScreenshotNotMirrored, refstring, ScreenshotURL{URL: shot.Source}))
			}
			continue
		}
		for _, thumbnail := range shot.Thumbnails {
			if !strings.HasPrefix(thumbnail, MirrorPrefix) {
				diagnostics = append(diagnostics, newDiagnostic(CategoryScreenshotNotMirrored, refstring, ScreenshotURL{URL: thumbnail}))
				continue
			}
			if branchRoot == "" {
				if !branchMissing {
					diagnostics = append(diagnostics, newDiagnostic(CategoryMissingScreenshotsBranch, refstring, ScreenshotsBranch{Branch: branch}))
					branchMissing = true
				}
				continue
			}
			mirrorPath := strings.TrimPrefix(thumbnail, MirrorPrefix)
			exists, err := ostree.FileExists(v.Repo, branchRoot, mirrorPath)
			if err != nil {
				return nil, err
			}
			if !exists {
				diagnostics = append(diagnostics, newDiagnostic(CategoryMirroredScreenshotNotFound, refstring, ScreenshotURL{URL: thumbnail}))
			}
		}
	}
	return diagnostics, nil
}

// validateBuildLogURL requires FOSS apps to publish a valid CI log URL.
func (v *Validation) validateBuildLogURL(ctx context.Context, build *backend.BuildExtended, component *etree.Element, refstring string) ([]Diagnostic, error) {
	if build == nil {
		return nil, nil
	}

	license := ""
	if declared := appstream.ChildText(component, "project_license"); declared != nil {
		license = *declared
	}
	foss, err := v.Services.IsFreeSoftware(ctx, flatref.AppID(refstring), license)
	if err != nil {
		return nil, err
	}
	if !foss {
		return nil, nil
	}

	logURL := build.RefLogURL(refstring)
	if logURL == nil || !isValidURL(*logURL) {
		return []Diagnostic{newDiagnostic(CategoryMissingBuildLogURL, refstring, nil)}, nil
	}
	return nil, nil
}

func isValidURL(raw string) bool {
	parsed, err := url.ParseRequestURI(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
