package appstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flathub-infra/buildhooks/internal/backend"
)

const refstring = "app/org.flatpak.Test/x86_64/stable"

func ptr[T any](v T) *T { return &v }

func rewrite(t *testing.T, input string, info *backend.StorefrontInfo, build *backend.BuildExtended) (string, bool) {
	t.Helper()
	doc, err := Load([]byte(input))
	require.NoError(t, err)
	changed, err := RewriteComponent(doc, refstring, info, build)
	require.NoError(t, err)
	rendered, err := doc.Render()
	require.NoError(t, err)
	return rendered, changed
}

func TestRenderRoundTripsUneditedDocument(t *testing.T) {
	t.Parallel()

	input := `<?xml version="1.0" encoding="utf-8"?>
<components>
  <component>
    <id>org.flatpak.Test</id>
  </component>
</components>
`
	doc, err := Load([]byte(input))
	require.NoError(t, err)
	rendered, err := doc.Render()
	require.NoError(t, err)
	assert.Equal(t, input, rendered)
}

func TestRewriteComponentNoFactsNoChange(t *testing.T) {
	t.Parallel()

	input := `<components><component><id>org.flatpak.Test</id></component></components>`
	rendered, changed := rewrite(t, input, &backend.StorefrontInfo{}, nil)
	assert.False(t, changed)
	assert.Equal(t, input, rendered)
}

func TestRewriteComponentInjectsFacts(t *testing.T) {
	t.Parallel()

	input := `<components><component><id>org.flatpak.Test</id></component></components>`
	info := &backend.StorefrontInfo{
		Verification: &backend.VerificationInfo{
			Verified:  true,
			Timestamp: ptr("2023-01-01T00:00:00"),
			Method:    ptr("website"),
			Website:   ptr("example.com"),
		},
		Pricing: &backend.PricingInfo{RecommendedDonation: ptr(5)},
	}
	build := &backend.BuildExtended{
		Build: backend.Build{BuildLogURL: ptr("https://logs.example.com/1")},
		BuildRefs: []backend.BuildRef{
			{RefName: refstring, BuildLogURL: ptr("https://logs.example.com/1/x86_64")},
			{RefName: "app/org.flatpak.Test/aarch64/stable", BuildLogURL: ptr("https://logs.example.com/1/aarch64")},
		},
	}

	rendered, changed := rewrite(t, input, info, build)
	assert.True(t, changed)

	assert.Contains(t, rendered, `<value key="flathub::verification::verified">true</value>`)
	assert.Contains(t, rendered, `<value key="flathub::verification::timestamp">2023-01-01T00:00:00</value>`)
	assert.Contains(t, rendered, `<value key="flathub::verification::method">website</value>`)
	assert.Contains(t, rendered, `<value key="flathub::verification::website">example.com</value>`)
	assert.Contains(t, rendered, `<value key="flathub::verification::login_is_organization">false</value>`)
	assert.Contains(t, rendered, `<value key="flathub::pricing::recommended_donation">5</value>`)
	assert.NotContains(t, rendered, "minimum_payment")
	assert.Contains(t, rendered, `<value key="flathub::build::build_log_url">https://logs.example.com/1</value>`)
	assert.Contains(t, rendered, `<value key="flathub::build::build_ref_log_url">https://logs.example.com/1/x86_64</value>`)
	assert.NotContains(t, rendered, "aarch64")
}

func TestRewriteComponentIdempotent(t *testing.T) {
	t.Parallel()

	input := `<?xml version="1.0" encoding="utf-8"?>
<components>
<component>
    <id>org.flatpak.Test</id>
    <custom>
        <value key="flathub::verification::verified">false</value>
        <value key="other::key">kept</value>
    </custom>
</component>
</components>`
	info := &backend.StorefrontInfo{
		Verification: &backend.VerificationInfo{Verified: true},
		Pricing:      &backend.PricingInfo{MinimumPayment: ptr(2)},
	}

	first, changed := rewrite(t, input, info, nil)
	assert.True(t, changed)
	second, changedAgain := rewrite(t, first, info, nil)
	assert.True(t, changedAgain)
	assert.Equal(t, first, second)
}

func TestPurgePreservesManifestKey(t *testing.T) {
	t.Parallel()

	input := `<components><component><id>org.flatpak.Test</id><custom>` +
		`<value key="flathub::manifest">https://example.com/manifest</value>` +
		`<value key="FLATHUB::Verification::Verified">true</value>` +
		`</custom></component></components>`

	rendered, changed := rewrite(t, input, &backend.StorefrontInfo{}, nil)
	assert.True(t, changed)
	assert.Contains(t, rendered, `flathub::manifest`)
	// The prefix match is case-insensitive, so the oddly cased key is
	// purged too.
	assert.NotContains(t, rendered, `FLATHUB::Verification::Verified`)
}

func TestPurgeBuildKeysOnlyWithFreshBuild(t *testing.T) {
	t.Parallel()

	input := `<components><component><id>org.flatpak.Test</id><custom>` +
		`<value key="flathub::build::build_log_url">https://old.example.com</value>` +
		`</custom></component></components>`

	// Republish without a fresh build record keeps the old log link.
	rendered, changed := rewrite(t, input, &backend.StorefrontInfo{}, nil)
	assert.False(t, changed)
	assert.Contains(t, rendered, "https://old.example.com")

	// A fresh build record replaces it.
	build := &backend.BuildExtended{
		Build: backend.Build{BuildLogURL: ptr("https://new.example.com")},
	}
	rendered, changed = rewrite(t, input, &backend.StorefrontInfo{}, build)
	assert.True(t, changed)
	assert.NotContains(t, rendered, "https://old.example.com")
	assert.Contains(t, rendered, "https://new.example.com")
}

func TestUpsertMatchesKeyCaseSensitively(t *testing.T) {
	t.Parallel()

	// An existing entry with the exact key is overwritten in place, not
	// appended a second time.
	input := `<components><component><id>org.flatpak.Test</id><custom>` +
		`<value key="flathub::verification::verified">false</value>` +
		`</custom></component></components>`

	rendered, _ := rewrite(t, input, &backend.StorefrontInfo{
		Verification: &backend.VerificationInfo{Verified: true},
	}, nil)
	assert.Equal(t, 1, strings.Count(rendered, "flathub::verification::verified"))
	assert.Contains(t, rendered, `<value key="flathub::verification::verified">true</value>`)
}

func TestRewriteComponentRequiresSingleComponent(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no components":       `<components></components>`,
		"multiple components": `<components><component/><component/></components>`,
	}

	for name, input := range tests {
		input := input
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			doc, err := Load([]byte(input))
			require.NoError(t, err)
			_, err = RewriteComponent(doc, refstring, &backend.StorefrontInfo{}, nil)
			assert.Error(t, err)
		})
	}
}
