package ostree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Object checksums are sha256 over a canonical serialization, prefixed
// with the object type so that a file and a dirtree with coinciding
// bytes can never collide.

func checksumFile(content []byte) string {
	h := sha256.New()
	h.Write([]byte("file\x00"))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func checksumDir(d *Dir) string {
	h := sha256.New()
	h.Write([]byte("dir\x00"))
	for _, name := range sortedKeys(d.Files) {
		fmt.Fprintf(h, "f %s %s\n", name, d.Files[name])
	}
	for _, name := range sortedKeys(d.Dirs) {
		fmt.Fprintf(h, "d %s %s\n", name, d.Dirs[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func checksumCommit(c *Commit) string {
	h := sha256.New()
	fmt.Fprintf(h, "commit\x00%s\n%s\n%s\n%d\n%s\n",
		c.Parent, c.Subject, c.Body, c.Timestamp.Unix(), c.Root)
	for _, key := range sortedKeys(c.Metadata) {
		fmt.Fprintf(h, "m %s %s\n", key, canonicalMetaValue(c.Metadata[key]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalMetaValue(value any) string {
	switch v := value.(type) {
	case string:
		return "s:" + v
	case int32:
		return fmt.Sprintf("i:%d", v)
	case []string:
		return "as:" + strings.Join(v, "\x1f")
	default:
		return fmt.Sprintf("?:%v", v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
