package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/mhollis/dedupd/internal/storage"
)

// DefaultChunkSize is the read buffer used when hashing file content.
// Working memory stays bounded by this regardless of file size.
const DefaultChunkSize = 1 << 20

// Fingerprint is the content-equality proxy for a file: the size as a cheap
// pre-filter plus a SHA-256 digest of the full content. Two files are
// duplicates iff both match.
type Fingerprint struct {
	Size   int64
	Digest string // hex-encoded SHA-256
}

// FingerprintFile streams the file's content through SHA-256 in fixed-size
// chunks, checking ctx between reads so a cancelled scan stops at the next
// chunk boundary. A zero-byte file yields the hash-of-empty-input digest.
func FingerprintFile(ctx context.Context, backend storage.Backend, rec storage.FileRecord, chunkSize int) (Fingerprint, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	r, err := backend.Open(ctx, rec.ID)
	if err != nil {
		return Fingerprint{}, err
	}
	defer r.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return Fingerprint{}, ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Fingerprint{}, err
		}
	}

	return Fingerprint{Size: rec.Size, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}
