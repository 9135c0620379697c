// Package review runs the validation battery over a build's refs,
// decides the review status, and reports it to flat-manager and the
// backend.
package review

import "encoding/json"

// Diagnostic categories. Each diagnostic serializes as a tagged union:
// the category names the variant, the data field carries its payload.
const (
	CategoryFailedToLoadAppstream      = "failed_to_load_appstream"
	CategoryAppstreamValidation        = "appstream_validation"
	CategoryNoLocalIcon                = "no_local_icon"
	CategoryMissingIcon                = "missing_icon"
	CategoryScreenshotNotMirrored      = "screenshot_not_mirrored"
	CategoryMirroredScreenshotNotFound = "mirrored_screenshot_not_found"
	CategoryMissingScreenshotsBranch   = "missing_screenshots_branch"
	CategoryWrongArchExecutables       = "wrong_arch_executables"
	CategoryMissingBuildLogURL         = "missing_build_log_url"
)

// Diagnostic is one check outcome, optionally tied to a ref.
type Diagnostic struct {
	Refstring *string `json:"refstring"`
	IsWarning bool    `json:"is_warning"`
	Category  string  `json:"category"`
	Data      any     `json:"data,omitempty"`
}

// FailedToLoadAppstream reports an unreadable, unparseable, or
// structurally wrong appstream file.
type FailedToLoadAppstream struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// AppstreamValidation carries the external validator's output for a
// file it rejected.
type AppstreamValidation struct {
	Path   string `json:"path"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// IconNote names the appstream file an icon diagnostic refers to.
type IconNote struct {
	AppstreamPath string `json:"appstream_path"`
}

// ScreenshotURL names the offending screenshot URL.
type ScreenshotURL struct {
	URL string `json:"url"`
}

// ScreenshotsBranch names the screenshots branch a diagnostic expected
// to find.
type ScreenshotsBranch struct {
	Branch string `json:"branch"`
}

// WrongArchExecutable is one binary built for the wrong architecture.
type WrongArchExecutable struct {
	Path             string `json:"path"`
	DetectedArch     string `json:"detected_arch"`
	DetectedArchCode uint16 `json:"detected_arch_code"`
}

// WrongArchExecutables aggregates every offending binary under one ref.
type WrongArchExecutables struct {
	ExpectedArch string                `json:"expected_arch"`
	Executables  []WrongArchExecutable `json:"executables"`
}

func newDiagnostic(category, refstring string, data any) Diagnostic {
	return Diagnostic{Refstring: &refstring, Category: category, Data: data}
}

func newWarning(category, refstring string, data any) Diagnostic {
	d := newDiagnostic(category, refstring, data)
	d.IsWarning = true
	return d
}

func newFailedToLoadAppstream(path, reason, refstring string) Diagnostic {
	return newDiagnostic(CategoryFailedToLoadAppstream, refstring, FailedToLoadAppstream{
		Path:  path,
		Error: reason,
	})
}

// CheckResult is the ordered diagnostic list of one review run.
type CheckResult struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasBlockingFailure reports whether any diagnostic is an error rather
// than a warning.
func (r *CheckResult) HasBlockingFailure() bool {
	for _, d := range r.Diagnostics {
		if !d.IsWarning {
			return true
		}
	}
	return false
}

// Serialize renders the result for the backend.
func (r *CheckResult) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
