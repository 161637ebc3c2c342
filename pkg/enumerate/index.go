package enumerate

import (
	"time"

	"github.com/google/btree"
)

const indexDegree = 32

type mtimeBucket struct {
	mtime time.Duration
	paths []string
}

// Index orders paths by modification time, expressed as the duration since
// the Unix epoch. Paths sharing a timestamp are kept together in insertion
// order, duplicates included.
type Index struct {
	tree *btree.BTreeG[*mtimeBucket]
	size int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		tree: btree.NewG(indexDegree, func(a, b *mtimeBucket) bool {
			return a.mtime < b.mtime
		}),
	}
}

// Insert files path under mtime.
func (x *Index) Insert(mtime time.Duration, path string) {
	x.size++
	if b, ok := x.tree.Get(&mtimeBucket{mtime: mtime}); ok {
		b.paths = append(b.paths, path)
		return
	}
	x.tree.ReplaceOrInsert(&mtimeBucket{mtime: mtime, paths: []string{path}})
}

// Len is the number of inserted paths.
func (x *Index) Len() int { return x.size }

// Timestamps is the number of distinct modification times.
func (x *Index) Timestamps() int { return x.tree.Len() }

// Ascend calls fn for each timestamp from oldest to newest until fn returns false.
func (x *Index) Ascend(fn func(mtime time.Duration, paths []string) bool) {
	x.tree.Ascend(func(b *mtimeBucket) bool {
		return fn(b.mtime, b.paths)
	})
}

// paths flattens the index in timestamp order.
func (x *Index) paths() []string {
	out := make([]string, 0, x.size)
	x.Ascend(func(_ time.Duration, paths []string) bool {
		out = append(out, paths...)
		return true
	})
	return out
}
