package ostree

import (
	"fmt"
)

// MutableTree is an editable overlay over an immutable dirtree. Nodes
// are expanded lazily: a subtree that is never walked keeps the checksum
// of its base dirtree, so Write re-serializes only the paths that were
// actually touched and everything else is shared with the original
// commit by reference.
type MutableTree struct {
	repo   Repo
	base   string // dirtree checksum this node overlays; "" for a new dir
	loaded bool
	files  map[string]string
	subs   map[string]*MutableTree
}

// NewMutableTree builds an overlay over the root tree of the given
// commit.
func NewMutableTree(repo Repo, commitChecksum string) (*MutableTree, error) {
	commit, err := repo.ReadCommit(commitChecksum)
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", commitChecksum, err)
	}
	return &MutableTree{repo: repo, base: commit.Root}, nil
}

func (t *MutableTree) load() error {
	if t.loaded {
		return nil
	}
	t.files = map[string]string{}
	t.subs = map[string]*MutableTree{}
	if t.base != "" {
		dir, err := t.repo.ReadDir(t.base)
		if err != nil {
			return fmt.Errorf("reading dir %s: %w", t.base, err)
		}
		for name, checksum := range dir.Files {
			t.files[name] = checksum
		}
		for name, checksum := range dir.Dirs {
			t.subs[name] = &MutableTree{repo: t.repo, base: checksum}
		}
	}
	t.loaded = true
	return nil
}

// LookupFile resolves a file by path segments. ok is false when any
// segment is missing.
func (t *MutableTree) LookupFile(path ...string) (checksum string, ok bool, err error) {
	if len(path) == 0 {
		return "", false, fmt.Errorf("no path given")
	}
	if err := t.load(); err != nil {
		return "", false, err
	}
	if len(path) == 1 {
		checksum, ok = t.files[path[0]]
		return checksum, ok, nil
	}
	sub, ok := t.subs[path[0]]
	if !ok {
		return "", false, nil
	}
	return sub.LookupFile(path[1:]...)
}

// ReplaceFile points the leaf at path to a new content object. Every
// parent directory on the way is expanded and will be re-serialized by
// Write. The leaf must already exist.
func (t *MutableTree) ReplaceFile(path []string, checksum string) error {
	if len(path) == 0 {
		return fmt.Errorf("no path given")
	}
	if err := t.load(); err != nil {
		return err
	}
	if len(path) == 1 {
		if _, ok := t.files[path[0]]; !ok {
			return fmt.Errorf("file %q not found", path[0])
		}
		t.files[path[0]] = checksum
		return nil
	}
	sub, ok := t.subs[path[0]]
	if !ok {
		return fmt.Errorf("subdirectory %q not found", path[0])
	}
	return sub.ReplaceFile(path[1:], checksum)
}

// Write serializes the overlay back into dirtree objects and returns
// the root checksum. Unexpanded subtrees return their base checksum
// without touching the store.
func (t *MutableTree) Write() (string, error) {
	if !t.loaded {
		return t.base, nil
	}
	dir := &Dir{Files: map[string]string{}, Dirs: map[string]string{}}
	for name, checksum := range t.files {
		dir.Files[name] = checksum
	}
	for name, sub := range t.subs {
		checksum, err := sub.Write()
		if err != nil {
			return "", err
		}
		dir.Dirs[name] = checksum
	}
	return t.repo.WriteDir(dir)
}
