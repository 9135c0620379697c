package review

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/lint"
	"github.com/flathub-infra/buildhooks/internal/ostree"
)

const (
	testAppID = "org.test.App"
	testRef   = "app/org.test.App/x86_64/stable"
	iconPath  = "files/share/app-info/icons/flatpak/128x128/org.test.App.png"
)

type fakeValidationServices struct {
	foss bool
}

func (f fakeValidationServices) IsFreeSoftware(ctx context.Context, appID, license string) (bool, error) {
	return f.foss, nil
}

func (f fakeValidationServices) Build(ctx context.Context) (*backend.BuildExtended, error) {
	return &backend.BuildExtended{}, nil
}

func gzipData(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func catalogXML(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<components>
<component>
` + body + `
</component>
</components>`
}

type fixture struct {
	repo *ostree.MemRepo
}

func newFixture() *fixture {
	return &fixture{repo: ostree.NewMemRepo()}
}

func (f *fixture) commit(t *testing.T, refstring string, files map[string][]byte) {
	t.Helper()
	_, err := ostree.CommitFiles(f.repo, refstring, files, nil)
	require.NoError(t, err)
}

func (f *fixture) validate(t *testing.T, build *backend.BuildExtended, foss bool) *CheckResult {
	t.Helper()
	refs, err := f.repo.ListRefs()
	require.NoError(t, err)

	v := &Validation{
		Repo:     f.repo,
		Services: fakeValidationServices{foss: foss},
		Linter:   &lint.Validator{Cmd: "true"},
		Log:      zerolog.Nop(),
	}
	result := &CheckResult{}
	require.NoError(t, v.ValidateBuild(context.Background(), build, refs, result))
	return result
}

func categories(result *CheckResult) []string {
	var out []string
	for _, d := range result.Diagnostics {
		out = append(out, d.Category)
	}
	return out
}

func TestValidateCleanApp(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit(t, testRef, map[string][]byte{
		iconPath: []byte("png"),
		"files/share/app-info/xmls/org.test.App.xml.gz": gzipData(t, catalogXML("<id>org.test.App</id>")),
	})

	result := f.validate(t, nil, false)
	assert.Empty(t, result.Diagnostics)
	assert.False(t, result.HasBlockingFailure())
}

func TestValidateDesktopSuffixTolerated(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit(t, testRef, map[string][]byte{
		iconPath: []byte("png"),
		"files/share/app-info/xmls/org.test.App.xml.gz": gzipData(t, catalogXML("<id>org.test.App.desktop</id>")),
	})

	result := f.validate(t, nil, false)
	assert.Empty(t, result.Diagnostics)
}

func TestValidateMissingCatalog(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit(t, testRef, map[string][]byte{iconPath: []byte("png")})

	result := f.validate(t, nil, false)
	require.Equal(t, []string{CategoryFailedToLoadAppstream}, categories(result))
	data := result.Diagnostics[0].Data.(FailedToLoadAppstream)
	assert.Equal(t, "files/share/app-info/xmls/org.test.App.xml.gz", data.Path)
	assert.Equal(t, "file does not exist", data.Error)
	assert.True(t, result.HasBlockingFailure())
}

func TestValidateCatalogStructure(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		catalog string
		wantErr string
	}{
		"multiple components": {
			catalog: `<components><component><id>org.test.App</id></component><component/></components>`,
			wantErr: "found multiple",
		},
		"no component": {
			catalog: `<components/>`,
			wantErr: "found none",
		},
		"wrong root": {
			catalog: `<component><id>org.test.App</id></component>`,
			wantErr: "expected <components>",
		},
		"not gzip": {
			catalog: "",
			wantErr: "gzip",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			content := []byte("plainly not gzip")
			if tt.catalog != "" {
				content = gzipData(t, tt.catalog)
			}
			f.commit(t, testRef, map[string][]byte{
				iconPath: []byte("png"),
				"files/share/app-info/xmls/org.test.App.xml.gz": content,
			})

			result := f.validate(t, nil, false)
			require.Equal(t, []string{CategoryFailedToLoadAppstream}, categories(result))
			data := result.Diagnostics[0].Data.(FailedToLoadAppstream)
			assert.Contains(t, data.Error, tt.wantErr)
		})
	}
}

func TestValidateComponentID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body    string
		wantErr string
	}{
		"mismatched id": {
			body:    "<id>org.other.App</id>",
			wantErr: "does not match expected ID",
		},
		"missing id": {
			body:    "<name>App</name>",
			wantErr: "does not have an ID",
		},
		"duplicate id": {
			body:    "<id>org.test.App</id><id>org.test.App</id>",
			wantErr: "multiple IDs",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.commit(t, testRef, map[string][]byte{
				iconPath: []byte("png"),
				"files/share/app-info/xmls/org.test.App.xml.gz": gzipData(t, catalogXML(tt.body)),
			})

			result := f.validate(t, nil, false)
			require.Equal(t, []string{CategoryFailedToLoadAppstream}, categories(result))
			data := result.Diagnostics[0].Data.(FailedToLoadAppstream)
			assert.Contains(t, data.Error, tt.wantErr)
		})
	}
}

func TestValidateIconPolicy(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		localIcon    bool
		body         string
		wantCategory string
		wantWarning  bool
	}{
		"local icon": {
			localIcon: true,
			body:      "<id>org.test.App</id>",
		},
		"remote icon only": {
			body:         `<id>org.test.App</id><icon type="remote">https://example.com/icon.png</icon>`,
			wantCategory: CategoryNoLocalIcon,
			wantWarning:  true,
		},
		"no icon at all": {
			body:         "<id>org.test.App</id>",
			wantCategory: CategoryMissingIcon,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			files := map[string][]byte{
				"files/share/app-info/xmls/org.test.App.xml.gz": gzipData(t, catalogXML(tt.body)),
			}
			if tt.localIcon {
				files[iconPath] = []byte("png")
			}
			f.commit(t, testRef, files)

			result := f.validate(t, nil, false)
			if tt.wantCategory == "" {
				assert.Empty(t, result.Diagnostics)
				return
			}
			require.Equal(t, []string{tt.wantCategory}, categories(result))
			assert.Equal(t, tt.wantWarning, result.Diagnostics[0].IsWarning)
		})
	}
}

func TestValidateScreenshots(t *testing.T) {
	t.Parallel()

	mirrored := MirrorPrefix + "org.test.App/shot.png"

	tests := map[string]struct {
		body           string
		mirroredFiles  map[string][]byte
		noBranch       bool
		wantCategories []string
	}{
		"mirrored and present": {
			body: `<id>org.test.App</id><screenshots><screenshot>` +
				`<image type="source">https://example.com/shot.png</image>` +
				`<image type="thumbnail">` + mirrored + `</image>` +
				`</screenshot></screenshots>`,
			mirroredFiles:  map[string][]byte{"org.test.App/shot.png": []byte("png")},
			wantCategories: nil,
		},
		"thumbnail not on mirror": {
			body: `<id>org.test.App</id><screenshots><screenshot>` +
				`<image type="thumbnail">https://example.com/shot.png</image>` +
				`</screenshot></screenshots>`,
			wantCategories: []string{CategoryScreenshotNotMirrored},
		},
		"no thumbnails records source": {
			body: `<id>org.test.App</id><screenshots><screenshot>` +
				`<image type="source">https://example.com/shot.png</image>` +
				`</screenshot></screenshots>`,
			wantCategories: []string{CategoryScreenshotNotMirrored},
		},
		"mirrored file missing": {
			body: `<id>org.test.App</id><screenshots><screenshot>` +
				`<image type="thumbnail">` + mirrored + `</image>` +
				`</screenshot></screenshots>`,
			mirroredFiles:  map[string][]byte{"other/file.png": []byte("png")},
			wantCategories: []string{CategoryMirroredScreenshotNotFound},
		},
		"screenshots branch missing": {
			body: `<id>org.test.App</id><screenshots><screenshot>` +
				`<image type="thumbnail">` + mirrored + `</image>` +
				`</screenshot></screenshots>`,
			noBranch:       true,
			wantCategories: []string{CategoryMissingScreenshotsBranch},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.commit(t, testRef, map[string][]byte{
				iconPath: []byte("png"),
				"files/share/app-info/xmls/org.test.App.xml.gz": gzipData(t, catalogXML(tt.body)),
			})
			if !tt.noBranch {
				branchFiles := tt.mirroredFiles
				if branchFiles == nil {
					branchFiles = map[string][]byte{"placeholder": []byte("x")}
				}
				f.commit(t, "screenshots/x86_64", branchFiles)
			}

			result := f.validate(t, nil, false)
			assert.Equal(t, tt.wantCategories, categories(result))
		})
	}
}

func TestValidateBuildLogPolicy(t *testing.T) {
	t.Parallel()

	logURL := "https://builds.example.com/logs/1"
	invalid := "not a url"

	tests := map[string]struct {
		foss           bool
		build          *backend.BuildExtended
		wantCategories []string
	}{
		"foss without log url": {
			foss:           true,
			build:          &backend.BuildExtended{},
			wantCategories: []string{CategoryMissingBuildLogURL},
		},
		"foss with invalid url": {
			foss:           true,
			build:          &backend.BuildExtended{Build: backend.Build{BuildLogURL: &invalid}},
			wantCategories: []string{CategoryMissingBuildLogURL},
		},
		"foss with valid url": {
			foss:  true,
			build: &backend.BuildExtended{Build: backend.Build{BuildLogURL: &logURL}},
		},
		"foss with per-ref url": {
			foss: true,
			build: &backend.BuildExtended{BuildRefs: []backend.BuildRef{
				{RefName: testRef, BuildLogURL: &logURL},
			}},
		},
		"proprietary app": {
			foss:  false,
			build: &backend.BuildExtended{},
		},
		"no build record": {
			foss:  true,
			build: nil,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.commit(t, testRef, map[string][]byte{
				iconPath: []byte("png"),
				"files/share/app-info/xmls/org.test.App.xml.gz": gzipData(t,
					catalogXML("<id>org.test.App</id><project_license>GPL-3.0-only</project_license>")),
			})

			result := f.validate(t, tt.build, tt.foss)
			assert.Equal(t, tt.wantCategories, categories(result))
		})
	}
}

func TestValidateLintFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit(t, testRef, map[string][]byte{
		iconPath: []byte("png"),
		"files/share/metainfo/org.test.App.metainfo.xml": []byte(`<component><id>org.test.App</id></component>`),
		"files/share/app-info/xmls/org.test.App.xml.gz":  gzipData(t, catalogXML("<id>org.test.App</id>")),
	})

	refs, err := f.repo.ListRefs()
	require.NoError(t, err)

	v := &Validation{
		Repo:     f.repo,
		Services: fakeValidationServices{},
		Linter:   &lint.Validator{Cmd: "sh", Args: []string{"-c", "echo tag invalid; exit 1"}},
		Log:      zerolog.Nop(),
	}
	result := &CheckResult{}
	require.NoError(t, v.ValidateBuild(context.Background(), nil, refs, result))

	require.Equal(t, []string{CategoryAppstreamValidation}, categories(result))
	data := result.Diagnostics[0].Data.(AppstreamValidation)
	assert.Equal(t, "files/share/metainfo/org.test.App.metainfo.xml", data.Path)
	assert.Equal(t, "tag invalid\n", data.Stdout)
	assert.True(t, result.HasBlockingFailure())
}

func TestValidateUnparseableMetainfo(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit(t, testRef, map[string][]byte{
		iconPath: []byte("png"),
		"files/share/metainfo/org.test.App.metainfo.xml": []byte("<component><unclosed"),
		"files/share/app-info/xmls/org.test.App.xml.gz":  gzipData(t, catalogXML("<id>org.test.App</id>")),
	})

	result := f.validate(t, nil, false)
	require.Equal(t, []string{CategoryFailedToLoadAppstream}, categories(result))
	data := result.Diagnostics[0].Data.(FailedToLoadAppstream)
	assert.Equal(t, "files/share/metainfo/org.test.App.metainfo.xml", data.Path)
}

func TestValidateSkipsNonPrimaryRefs(t *testing.T) {
	t.Parallel()

	f := newFixture()
	// Neither the runtime nor the screenshots ref carries appstream
	// metadata; only primary refs are validated at all.
	f.commit(t, "runtime/org.test.App.Locale/x86_64/stable", map[string][]byte{
		"files/share/locale/de.mo": []byte("mo"),
	})
	f.commit(t, "screenshots/x86_64", map[string][]byte{
		"org.test.App/shot.png": []byte("png"),
	})

	result := f.validate(t, nil, false)
	assert.Empty(t, result.Diagnostics)
}
