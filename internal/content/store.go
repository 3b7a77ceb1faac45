// Package content stores raw fetched payloads between the crawl and
// extract stages. The crawler writes each posting's body here and the
// extractor reads it back, so the two stages share nothing but a path.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no payload exists at the path.
var ErrNotFound = errors.New("content not found")

// Store is the blob store the pipeline reads and writes.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	// Get returns the payload at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// DeleteOlderThan removes payloads stored before the cutoff and
	// returns the number removed.
	DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}

// PathFor returns the storage path for a posting's raw payload:
// raw/{company}/{sha256 of the url, hex}. Hashing keeps keys flat and
// character-safe, and refetching a URL overwrites its previous payload.
func PathFor(company, url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("raw/%s/%s", company, hex.EncodeToString(sum[:]))
}
