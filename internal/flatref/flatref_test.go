package flatref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		refstring string
		want      Ref
		wantErr   bool
	}{
		"app ref": {
			refstring: "app/org.gnome.Recipes/x86_64/stable",
			want:      Ref{Kind: KindApp, ID: "org.gnome.Recipes", Arch: "x86_64", Branch: "stable"},
		},
		"runtime ref": {
			refstring: "runtime/org.gnome.Recipes.Locale/aarch64/stable",
			want:      Ref{Kind: KindRuntime, ID: "org.gnome.Recipes.Locale", Arch: "aarch64", Branch: "stable"},
		},
		"screenshots ref": {
			refstring: "screenshots/x86_64",
			want:      Ref{Kind: KindScreenshots, Arch: "x86_64"},
		},
		"too few segments": {
			refstring: "app/org.gnome.Recipes",
			wantErr:   true,
		},
		"too many segments": {
			refstring: "app/org.gnome.Recipes/x86_64/stable/extra",
			wantErr:   true,
		},
		"empty": {
			refstring: "",
			wantErr:   true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.refstring)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		refstring string
		want      string
	}{
		"plain app":       {refstring: "app/org.gnome.Recipes/x86_64/stable", want: "org.gnome.Recipes"},
		"locale suffix":   {refstring: "runtime/org.gnome.Recipes.Locale/x86_64/stable", want: "org.gnome.Recipes"},
		"debug suffix":    {refstring: "runtime/org.gnome.Recipes.Debug/x86_64/stable", want: "org.gnome.Recipes"},
		"sources suffix":  {refstring: "runtime/org.gnome.Recipes.Sources/x86_64/stable", want: "org.gnome.Recipes"},
		"suffix mid-id":   {refstring: "app/org.Debug.Recipes/x86_64/stable", want: "org.Debug.Recipes"},
		"screenshots ref": {refstring: "screenshots/x86_64", want: "x86_64"},
		"single segment":  {refstring: "app", want: ""},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AppID(tt.refstring))
		})
	}
}

func TestArch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x86_64", Arch("app/org.gnome.Recipes/x86_64/stable"))
	assert.Equal(t, "aarch64", Arch("screenshots/aarch64"))
	assert.Equal(t, "", Arch("not-a-ref"))
}

func TestIsPrimary(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		refstring string
		want      bool
	}{
		"app ref":         {refstring: "app/org.gnome.Recipes/x86_64/stable", want: true},
		"runtime ref":     {refstring: "runtime/org.gnome.Recipes.Locale/x86_64/stable", want: false},
		"screenshots ref": {refstring: "screenshots/x86_64", want: false},
		"skipped app":     {refstring: "app/org.flathub.Infra.SmokeTest/x86_64/stable", want: false},
		"malformed":       {refstring: "garbage", want: false},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPrimary(tt.refstring))
		})
	}
}
