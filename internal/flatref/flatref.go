// Package flatref models flatpak-style refstrings (kind/id/arch/branch)
// and the derivations the pipeline needs: canonical app id, architecture,
// and the primary-ref filter that decides which refs go through review.
package flatref

import (
	"fmt"
	"strings"
)

// Kind is the first segment of a refstring.
type Kind string

const (
	KindApp         Kind = "app"
	KindRuntime     Kind = "runtime"
	KindExtension   Kind = "extension"
	KindScreenshots Kind = "screenshots"
)

// Ref is a parsed refstring. Screenshots refs only carry an architecture
// ("screenshots/x86_64"); all other kinds have the full four segments.
type Ref struct {
	Kind   Kind
	ID     string
	Arch   string
	Branch string
}

// suffixes that extension refs append to the canonical app id
var extensionSuffixes = map[string]bool{
	"Sources": true,
	"Debug":   true,
	"Locale":  true,
}

// App ids published under app/ but owned by the flathub infrastructure
// itself. They are managed by other tooling and never go through review.
var skippedAppIDs = map[string]bool{
	"org.flathub.Infra.SmokeTest": true,
	"org.flathub.Infra.BaseApp":   true,
}

// Parse splits a refstring into its segments.
func Parse(refstring string) (Ref, error) {
	parts := strings.Split(refstring, "/")
	switch {
	case len(parts) == 2 && Kind(parts[0]) == KindScreenshots:
		return Ref{Kind: KindScreenshots, Arch: parts[1]}, nil
	case len(parts) == 4:
		return Ref{
			Kind:   Kind(parts[0]),
			ID:     parts[1],
			Arch:   parts[2],
			Branch: parts[3],
		}, nil
	default:
		return Ref{}, fmt.Errorf("malformed refstring %q", refstring)
	}
}

// AppID returns the canonical app id for a refstring, stripping the
// Sources/Debug/Locale suffix that extension refs carry. It returns ""
// for refstrings with fewer than two segments.
func AppID(refstring string) string {
	parts := strings.Split(refstring, "/")
	if len(parts) < 2 {
		return ""
	}
	id := parts[1]

	idParts := strings.Split(id, ".")
	if extensionSuffixes[idParts[len(idParts)-1]] {
		return strings.Join(idParts[:len(idParts)-1], ".")
	}
	return id
}

// Arch returns the architecture segment of a refstring, or "" if the
// refstring does not parse.
func Arch(refstring string) string {
	ref, err := Parse(refstring)
	if err != nil {
		return ""
	}
	return ref.Arch
}

// IsPrimary reports whether a refstring names a primary app ref: the ref
// whose id is the canonical app id and which therefore carries the
// appstream metadata. Runtime and screenshots refs are never primary,
// and neither are the infra-owned ids in the skip list.
func IsPrimary(refstring string) bool {
	ref, err := Parse(refstring)
	if err != nil || ref.Kind != KindApp {
		return false
	}
	return !skippedAppIDs[ref.ID]
}
