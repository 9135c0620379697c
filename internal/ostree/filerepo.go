package ostree

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileRepo persists the same object model as MemRepo under a directory:
//
//	objects/<checksum>        file contents
//	meta/dirs/<checksum>      dirtree objects (JSON)
//	meta/commits/<checksum>   commit objects (JSON)
//	refs/<refstring>          one file per ref, containing the checksum
//
// It is what the CLI operates on when flat-manager hands the hook a
// build directory.
type FileRepo struct {
	root string
	mu   sync.Mutex
	inTx bool
}

// OpenFileRepo opens (creating if necessary) a repository at path.
func OpenFileRepo(path string) (*FileRepo, error) {
	for _, sub := range []string{"objects", "meta/dirs", "meta/commits", "refs"} {
		if err := os.MkdirAll(filepath.Join(path, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating repo layout: %w", err)
		}
	}
	return &FileRepo{root: path}, nil
}

func (r *FileRepo) ListRefs() (map[string]string, error) {
	refs := map[string]string{}
	refsDir := filepath.Join(r.root, "refs")
	err := filepath.WalkDir(refsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(refsDir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = strings.TrimSpace(string(content))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing refs: %w", err)
	}
	return refs, nil
}

func (r *FileRepo) ReadCommit(checksum string) (*Commit, error) {
	data, err := os.ReadFile(r.objectPath("meta/commits", checksum))
	if err != nil {
		return nil, fmt.Errorf("no commit object %s: %w", checksum, err)
	}
	var commit Commit
	if err := json.Unmarshal(data, &commit); err != nil {
		return nil, fmt.Errorf("decoding commit %s: %w", checksum, err)
	}
	return &commit, nil
}

func (r *FileRepo) ReadDir(checksum string) (*Dir, error) {
	data, err := os.ReadFile(r.objectPath("meta/dirs", checksum))
	if err != nil {
		return nil, fmt.Errorf("no dirtree object %s: %w", checksum, err)
	}
	var dir Dir
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("decoding dirtree %s: %w", checksum, err)
	}
	return &dir, nil
}

func (r *FileRepo) LoadFile(checksum string) ([]byte, error) {
	data, err := os.ReadFile(r.objectPath("objects", checksum))
	if err != nil {
		return nil, fmt.Errorf("no file object %s: %w", checksum, err)
	}
	return data, nil
}

func (r *FileRepo) WriteFile(content []byte) (string, error) {
	checksum := checksumFile(content)
	return checksum, r.writeObject("objects", checksum, content)
}

func (r *FileRepo) WriteDir(d *Dir) (string, error) {
	checksum := checksumDir(d)
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return checksum, r.writeObject("meta/dirs", checksum, data)
}

func (r *FileRepo) WriteCommit(c *Commit) (string, error) {
	checksum := checksumCommit(c)
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return checksum, r.writeObject("meta/commits", checksum, data)
}

func (r *FileRepo) Begin() (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inTx {
		return nil, fmt.Errorf("a transaction is already open")
	}
	r.inTx = true
	return &fileTx{repo: r, staged: map[string]string{}}, nil
}

func (r *FileRepo) objectPath(kind, checksum string) string {
	return filepath.Join(r.root, kind, checksum)
}

// writeObject stores an object atomically; an existing object with the
// same checksum is identical by construction and left alone.
func (r *FileRepo) writeObject(kind, checksum string, data []byte) error {
	path := r.objectPath(kind, checksum)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing object %s: %w", checksum, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing object %s: %w", checksum, err)
	}
	return nil
}

type fileTx struct {
	repo   *FileRepo
	staged map[string]string
	done   bool
}

func (tx *fileTx) SetRef(refstring, checksum string) {
	tx.staged[refstring] = checksum
}

func (tx *fileTx) Commit() error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	for refstring, checksum := range tx.staged {
		path := filepath.Join(tx.repo.root, "refs", filepath.FromSlash(refstring))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("updating ref %s: %w", refstring, err)
		}
		if err := os.WriteFile(path, []byte(checksum+"\n"), 0o644); err != nil {
			return fmt.Errorf("updating ref %s: %w", refstring, err)
		}
	}
	tx.done = true
	tx.repo.inTx = false
	return nil
}

func (tx *fileTx) Abort() {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.done {
		return
	}
	tx.staged = nil
	tx.done = true
	tx.repo.inTx = false
}
