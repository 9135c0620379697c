// Package ostree abstracts the content-addressed build repository the
// pipeline operates on. Commits, directory trees, and file contents are
// immutable objects identified by checksum; refs are named pointers to
// commits, updated only inside a transaction.
//
// The pipeline depends exclusively on the Repo interface. MemRepo and
// FileRepo implement it with sha256 addressing over canonical object
// serializations; a libostree binding would slot in behind the same
// interface.
package ostree

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata is a commit's key/value dictionary. Values are typed: string,
// int32, or []string. The custom JSON encoding keeps the value types
// stable across persistence round-trips.
type Metadata map[string]any

// Dir is one immutable directory tree node. Files map entry names to
// content-object checksums, Dirs map subdirectory names to dirtree
// checksums.
type Dir struct {
	Files map[string]string `json:"files"`
	Dirs  map[string]string `json:"dirs"`
}

// Commit is the metadata of one commit object. Root is the checksum of
// the commit's root dirtree.
type Commit struct {
	Parent    string    `json:"parent,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
	Root      string    `json:"root"`
}

// Repo is the repository capability consumed by the publish and review
// pipelines. Write methods store objects immediately (content addressing
// makes unreferenced objects harmless); ref updates only happen through
// a Transaction.
type Repo interface {
	// ListRefs returns every ref in the repository mapped to its commit
	// checksum.
	ListRefs() (map[string]string, error)

	// ReadCommit loads a commit object by checksum.
	ReadCommit(checksum string) (*Commit, error)

	// ReadDir loads a dirtree object by checksum.
	ReadDir(checksum string) (*Dir, error)

	// LoadFile returns the content of a file object.
	LoadFile(checksum string) ([]byte, error)

	// WriteFile stores a file object and returns its checksum.
	WriteFile(content []byte) (string, error)

	// WriteDir stores a dirtree object and returns its checksum.
	WriteDir(d *Dir) (string, error)

	// WriteCommit stores a commit object and returns its checksum.
	WriteCommit(c *Commit) (string, error)

	// Begin opens the repository's single transaction. It fails if a
	// transaction is already open.
	Begin() (Transaction, error)
}

// Transaction scopes ref updates. Callers must `defer tx.Abort()`
// immediately after Begin: Abort rolls back staged ref updates unless
// Commit already ran, so every exit path either commits fully or leaves
// the refs untouched.
type Transaction interface {
	// SetRef stages a ref update to be applied on Commit.
	SetRef(refstring, checksum string)

	// Commit applies the staged ref updates and closes the transaction.
	Commit() error

	// Abort discards staged updates and closes the transaction. It is a
	// no-op after a successful Commit.
	Abort()
}

// metaValue is the persisted form of one Metadata entry.
type metaValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

// MarshalJSON encodes each value with a type tag so that int32 and
// []string survive a persistence round-trip (plain JSON would widen
// every number to float64).
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]metaValue, len(m))
	for key, value := range m {
		var mv metaValue
		switch v := value.(type) {
		case string:
			mv.Type = "s"
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			mv.Value = raw
		case int32:
			mv.Type = "i"
			mv.Value = json.RawMessage(fmt.Sprintf("%d", v))
		case []string:
			mv.Type = "as"
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			mv.Value = raw
		default:
			return nil, fmt.Errorf("metadata key %q has unsupported type %T", key, value)
		}
		out[key] = mv
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var in map[string]metaValue
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(Metadata, len(in))
	for key, mv := range in {
		switch mv.Type {
		case "s":
			var v string
			if err := json.Unmarshal(mv.Value, &v); err != nil {
				return err
			}
			out[key] = v
		case "i":
			var v int32
			if err := json.Unmarshal(mv.Value, &v); err != nil {
				return err
			}
			out[key] = v
		case "as":
			var v []string
			if err := json.Unmarshal(mv.Value, &v); err != nil {
				return err
			}
			out[key] = v
		default:
			return fmt.Errorf("metadata key %q has unknown type tag %q", key, mv.Type)
		}
	}
	*m = out
	return nil
}

// ResolvePath walks a slash-separated path from the given dirtree
// checksum and returns the checksum of the file object at the end.
// ok is false when any segment is missing.
func ResolvePath(repo Repo, root, path string) (checksum string, ok bool, err error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	current := root
	for i, segment := range segments {
		dir, err := repo.ReadDir(current)
		if err != nil {
			return "", false, fmt.Errorf("reading dir %s: %w", current, err)
		}
		if i == len(segments)-1 {
			cs, found := dir.Files[segment]
			return cs, found, nil
		}
		sub, found := dir.Dirs[segment]
		if !found {
			return "", false, nil
		}
		current = sub
	}
	return "", false, nil
}

// FileExists reports whether a file object exists at path under root.
func FileExists(repo Repo, root, path string) (bool, error) {
	_, ok, err := ResolvePath(repo, root, path)
	return ok, err
}

// ReadFileAt resolves path under root and loads the file content. ok is
// false when the path does not exist.
func ReadFileAt(repo Repo, root, path string) (content []byte, ok bool, err error) {
	checksum, ok, err := ResolvePath(repo, root, path)
	if err != nil || !ok {
		return nil, ok, err
	}
	content, err = repo.LoadFile(checksum)
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}
