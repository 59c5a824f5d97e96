package engine

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/mhollis/dedupd/internal/storage"
)

// DuplicateGroup is a set of 2+ files proven bit-identical by matching size
// and content digest. Members keep the order they were first inserted in.
type DuplicateGroup struct {
	Fingerprint Fingerprint
	Members     []storage.FileRecord
}

// WastedBytes is the space reclaimable by keeping a single member.
func (g DuplicateGroup) WastedBytes() int64 {
	return g.Fingerprint.Size * int64(len(g.Members)-1)
}

const indexShards = 64

type bucketKey struct {
	size   int64
	digest string
}

type bucket struct {
	members []storage.FileRecord
	seen    map[storage.FileID]bool
}

type indexShard struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// Index maps (size, digest) to the files sharing that fingerprint. It is the
// only structure mutated concurrently during a scan; every mutation is a
// single-key insertion guarded by the owning shard, so no lock spans the
// whole index.
type Index struct {
	shards [indexShards]indexShard
}

// NewIndex creates an empty grouping index.
func NewIndex() *Index {
	ix := &Index{}
	for i := range ix.shards {
		ix.shards[i].buckets = make(map[bucketKey]*bucket)
	}
	return ix
}

// Insert records that rec has the given fingerprint. Re-inserting the same
// FileID into the same bucket is a no-op, so incremental rescans stay
// idempotent.
func (ix *Index) Insert(fp Fingerprint, rec storage.FileRecord) {
	key := bucketKey{size: fp.Size, digest: fp.Digest}
	s := &ix.shards[shardFor(fp.Digest)]

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[key]
	if b == nil {
		b = &bucket{seen: make(map[storage.FileID]bool)}
		s.buckets[key] = b
	}
	if b.seen[rec.ID] {
		return
	}
	b.seen[rec.ID] = true
	b.members = append(b.members, rec)
}

// Groups emits every bucket with two or more members. Singleton buckets are
// dropped. Output order is fixed (largest waste first, digest tie-break) so
// repeated scans of the same tree produce comparable results.
func (ix *Index) Groups() []DuplicateGroup {
	var groups []DuplicateGroup
	for i := range ix.shards {
		s := &ix.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if len(b.members) < 2 {
				continue
			}
			members := make([]storage.FileRecord, len(b.members))
			copy(members, b.members)
			groups = append(groups, DuplicateGroup{
				Fingerprint: Fingerprint{Size: key.size, Digest: key.digest},
				Members:     members,
			})
		}
		s.mu.Unlock()
	}

	sort.Slice(groups, func(i, j int) bool {
		wi, wj := groups[i].WastedBytes(), groups[j].WastedBytes()
		if wi != wj {
			return wi > wj
		}
		return groups[i].Fingerprint.Digest < groups[j].Fingerprint.Digest
	})
	return groups
}

func shardFor(digest string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(digest))
	return h.Sum32() % indexShards
}
