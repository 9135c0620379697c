// Package publish rewrites the catalog entries of every ref in a build
// repo with the storefront and build facts current at publish time,
// then re-points each ref at a rewritten commit. Rewrites are
// transactional per ref and skipped entirely when they would not change
// any bytes.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/flathub-infra/buildhooks/internal/appstream"
	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/flatref"
	"github.com/flathub-infra/buildhooks/internal/ostree"
)

// Outcome is the terminal state of one ref's rewrite.
type Outcome int

const (
	// Unchanged means the ref's content already carried the current
	// facts, or carries no catalog entry at all.
	Unchanged Outcome = iota
	// Rewritten means the ref now points at a new commit.
	Rewritten
)

func (o Outcome) String() string {
	if o == Rewritten {
		return "rewritten"
	}
	return "unchanged"
}

// Services is the backend surface publish needs.
type Services interface {
	// StorefrontInfo fetches the per-app publish facts.
	StorefrontInfo(ctx context.Context, appID string) (*backend.StorefrontInfo, error)
	// Build fetches the extended build record for the configured build.
	Build(ctx context.Context) (*backend.BuildExtended, error)
}

// Publisher rewrites one build repo.
type Publisher struct {
	Repo     ostree.Repo
	Services Services

	// Republish marks a run without a fresh build record; previously
	// published build-log keys are preserved in that case.
	Republish bool

	Log zerolog.Logger
}

// Run rewrites every ref in the repo. Storefront facts are fetched once
// per app id and shared across its refs. Any failure aborts the whole
// run; a partially rewritten ref is rolled back by its transaction.
func (p *Publisher) Run(ctx context.Context) error {
	refs, err := p.Repo.ListRefs()
	if err != nil {
		return fmt.Errorf("listing refs: %w", err)
	}

	var build *backend.BuildExtended
	if !p.Republish {
		build, err = p.Services.Build(ctx)
		if err != nil {
			return err
		}
	}

	storefronts := map[string]*backend.StorefrontInfo{}

	for _, refstring := range sortedRefstrings(refs) {
		checksum := refs[refstring]
		p.Log.Info().Str("ref", refstring).Str("commit", checksum).Msg("rewriting ref")

		appID := flatref.AppID(refstring)
		info, ok := storefronts[appID]
		if !ok {
			info, err = p.Services.StorefrontInfo(ctx, appID)
			if err != nil {
				return err
			}
			storefronts[appID] = info
		}

		outcome, err := p.rewriteRef(info, build, refstring, checksum)
		if err != nil {
			return fmt.Errorf("rewriting %s: %w", refstring, err)
		}
		p.Log.Info().Str("ref", refstring).Stringer("outcome", outcome).Msg("ref done")
	}

	return nil
}

// rewriteRef runs the per-ref state machine: overlay the commit's tree,
// rewrite the catalog entry, and re-commit with recomputed metadata.
// The transaction aborts on every path except an explicit commit.
func (p *Publisher) rewriteRef(info *backend.StorefrontInfo, build *backend.BuildExtended, refstring, checksum string) (Outcome, error) {
	tx, err := p.Repo.Begin()
	if err != nil {
		return Unchanged, err
	}
	defer tx.Abort()

	mtree, err := ostree.NewMutableTree(p.Repo, checksum)
	if err != nil {
		return Unchanged, err
	}

	changed, err := p.rewriteCatalogFile(mtree, info, build, refstring)
	if err != nil {
		return Unchanged, err
	}
	if !changed {
		return Unchanged, nil
	}

	root, err := mtree.Write()
	if err != nil {
		return Unchanged, err
	}

	commit, err := p.Repo.ReadCommit(checksum)
	if err != nil {
		return Unchanged, err
	}

	// Same subject, body, timestamp and parent as the original commit;
	// only the tree and the derived metadata fields differ.
	newChecksum, err := p.Repo.WriteCommit(&ostree.Commit{
		Parent:    commit.Parent,
		Subject:   commit.Subject,
		Body:      commit.Body,
		Timestamp: commit.Timestamp,
		Metadata:  CommitMetadata(commit.Metadata, info),
		Root:      root,
	})
	if err != nil {
		return Unchanged, err
	}

	outcome := Unchanged
	if newChecksum != checksum {
		tx.SetRef(refstring, newChecksum)
		outcome = Rewritten
	}
	if err := tx.Commit(); err != nil {
		return Unchanged, err
	}
	return outcome, nil
}

// rewriteCatalogFile splices a rewritten catalog entry into the overlay
// tree. Refs without a catalog entry are fine; reporting false means
// nothing was touched.
func (p *Publisher) rewriteCatalogFile(mtree *ostree.MutableTree, info *backend.StorefrontInfo, build *backend.BuildExtended, refstring string) (bool, error) {
	appID := flatref.AppID(refstring)
	path := strings.Split(appstream.CatalogPath(appID), "/")

	fileChecksum, ok, err := mtree.LookupFile(path...)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	compressed, err := p.Repo.LoadFile(fileChecksum)
	if err != nil {
		return false, err
	}
	original, err := gunzip(compressed)
	if err != nil {
		return false, fmt.Errorf("decompressing %s: %w", appID+".xml.gz", err)
	}

	doc, err := appstream.Load(original)
	if err != nil {
		return false, err
	}
	changed, err := appstream.RewriteComponent(doc, refstring, info, build)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	rendered, err := doc.Render()
	if err != nil {
		return false, err
	}
	if rendered == string(original) {
		return false, nil
	}
	p.Log.Info().Str("ref", refstring).Str("path", appstream.CatalogPath(appID)).Msg("catalog entry changed")
	p.Log.Debug().
		Int("old_size", len(original)).
		Int("new_size", len(rendered)).
		Msg("catalog entry rewritten")

	recompressed, err := gzipBytes([]byte(rendered))
	if err != nil {
		return false, err
	}
	newFileChecksum, err := p.Repo.WriteFile(recompressed)
	if err != nil {
		return false, err
	}
	return true, mtree.ReplaceFile(path, newFileChecksum)
}

func gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedRefstrings(refs map[string]string) []string {
	refstrings := make([]string, 0, len(refs))
	for refstring := range refs {
		refstrings = append(refstrings, refstring)
	}
	sort.Strings(refstrings)
	return refstrings
}
