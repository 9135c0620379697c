package ostree

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemRepo is a complete in-memory Repo. It backs the pipeline's tests;
// the publish and review pipelines only ever see the Repo interface, so
// swapping in a persistent store is a constructor change.
type MemRepo struct {
	mu      sync.Mutex
	files   map[string][]byte
	dirs    map[string]*Dir
	commits map[string]*Commit
	refs    map[string]string
	inTx    bool
}

// NewMemRepo returns an empty in-memory repository.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		files:   map[string][]byte{},
		dirs:    map[string]*Dir{},
		commits: map[string]*Commit{},
		refs:    map[string]string{},
	}
}

func (r *MemRepo) ListRefs() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := make(map[string]string, len(r.refs))
	for ref, checksum := range r.refs {
		refs[ref] = checksum
	}
	return refs, nil
}

func (r *MemRepo) ReadCommit(checksum string) (*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	commit, ok := r.commits[checksum]
	if !ok {
		return nil, fmt.Errorf("no commit object %s", checksum)
	}
	copied := *commit
	return &copied, nil
}

func (r *MemRepo) ReadDir(checksum string) (*Dir, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, ok := r.dirs[checksum]
	if !ok {
		return nil, fmt.Errorf("no dirtree object %s", checksum)
	}
	return dir, nil
}

func (r *MemRepo) LoadFile(checksum string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.files[checksum]
	if !ok {
		return nil, fmt.Errorf("no file object %s", checksum)
	}
	return content, nil
}

func (r *MemRepo) WriteFile(content []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checksum := checksumFile(content)
	r.files[checksum] = content
	return checksum, nil
}

func (r *MemRepo) WriteDir(d *Dir) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checksum := checksumDir(d)
	r.dirs[checksum] = d
	return checksum, nil
}

func (r *MemRepo) WriteCommit(c *Commit) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checksum := checksumCommit(c)
	copied := *c
	r.commits[checksum] = &copied
	return checksum, nil
}

func (r *MemRepo) Begin() (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inTx {
		return nil, fmt.Errorf("a transaction is already open")
	}
	r.inTx = true
	return &memTx{repo: r, staged: map[string]string{}}, nil
}

type memTx struct {
	repo   *MemRepo
	staged map[string]string
	done   bool
}

func (tx *memTx) SetRef(refstring, checksum string) {
	tx.staged[refstring] = checksum
}

func (tx *memTx) Commit() error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	for refstring, checksum := range tx.staged {
		tx.repo.refs[refstring] = checksum
	}
	tx.done = true
	tx.repo.inTx = false
	return nil
}

func (tx *memTx) Abort() {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.done {
		return
	}
	tx.staged = nil
	tx.done = true
	tx.repo.inTx = false
}

// CommitFiles writes the given path→content map as a commit tree and
// points refstring at it. Paths are slash-separated relative to the
// commit root. Convenience for tests and import tooling.
func CommitFiles(repo Repo, refstring string, files map[string][]byte, meta Metadata) (string, error) {
	root := newTreeBuilder()
	for _, path := range sortedFilePaths(files) {
		checksum, err := repo.WriteFile(files[path])
		if err != nil {
			return "", err
		}
		root.insert(strings.Split(strings.Trim(path, "/"), "/"), checksum)
	}
	rootChecksum, err := root.write(repo)
	if err != nil {
		return "", err
	}
	if meta == nil {
		meta = Metadata{}
	}
	commitChecksum, err := repo.WriteCommit(&Commit{
		Subject:   "Commit of " + refstring,
		Timestamp: time.Unix(0, 0).UTC(),
		Metadata:  meta,
		Root:      rootChecksum,
	})
	if err != nil {
		return "", err
	}
	tx, err := repo.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Abort()
	tx.SetRef(refstring, commitChecksum)
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return commitChecksum, nil
}

type treeBuilder struct {
	files map[string]string
	subs  map[string]*treeBuilder
}

func newTreeBuilder() *treeBuilder {
	return &treeBuilder{files: map[string]string{}, subs: map[string]*treeBuilder{}}
}

func (b *treeBuilder) insert(segments []string, checksum string) {
	if len(segments) == 1 {
		b.files[segments[0]] = checksum
		return
	}
	sub, ok := b.subs[segments[0]]
	if !ok {
		sub = newTreeBuilder()
		b.subs[segments[0]] = sub
	}
	sub.insert(segments[1:], checksum)
}

func (b *treeBuilder) write(repo Repo) (string, error) {
	dir := &Dir{Files: b.files, Dirs: map[string]string{}}
	for name, sub := range b.subs {
		checksum, err := sub.write(repo)
		if err != nil {
			return "", err
		}
		dir.Dirs[name] = checksum
	}
	return repo.WriteDir(dir)
}

func sortedFilePaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
