// Package providers defines the interface that all suggestion index storage providers must implement.
package providers

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrReadOnly is returned by write operations on a provider opened for reading only.
var ErrReadOnly = errors.New("provider is read-only")

// Entry is one indexed word of one corpus field.
type Entry struct {
	// Field is the corpus field the word was extracted from.
	Field string

	// Word is the original candidate, exactly as the corpus returned it.
	Word string

	// Fragments are the prefix fragments the entry is reachable by.
	// Duplicates are permitted and carry no extra weight.
	Fragments []string

	// Frequency is the corpus document frequency of the word.
	Frequency int
}

// Posting links a fragment to the entry containing it.
type Posting struct {
	// Word is the stored original word.
	Word string

	// Field is the corpus field of the entry.
	Field string

	// Frequency is the stored document frequency, used as the sort key.
	Frequency int

	// Seq is the insertion order of the entry: segment number in the upper
	// 32 bits, position inside the segment in the lower 32 bits.
	Seq uint64
}

// SegmentWriter collects the entries of one field. Nothing written through it
// is visible to readers until Commit returns successfully.
type SegmentWriter interface {
	// Add appends an entry to the segment.
	Add(ctx context.Context, entry Entry) error

	// Commit finalizes the segment and makes it visible as a unit.
	Commit(ctx context.Context) error

	// Abort discards everything added since the segment was started.
	// It is safe to call after a failed Commit.
	Abort(ctx context.Context) error
}

// Provider defines the interface that all suggestion index providers must implement.
// Lookup must be safe for concurrent use. Writes are issued by a single builder at a time.
// The namespace parameter allows multiple suggestion indexes to coexist in one backend.
type Provider interface {
	// Reset removes every segment of the namespace.
	Reset(ctx context.Context, namespace string) error

	// BeginSegment starts a new segment for the given corpus field.
	BeginSegment(ctx context.Context, namespace, field string) (SegmentWriter, error)

	// Lookup returns the postings stored under the exact fragment key,
	// sorted with SortPostings and limited to limit entries.
	// Returns an empty slice (not an error) when the key is unknown.
	Lookup(ctx context.Context, namespace, fragment string, limit int) ([]Posting, error)

	// Refresh makes segments committed since the last refresh visible to Lookup.
	Refresh(ctx context.Context) error

	// Close releases the resources held by the provider.
	// It is safe to call multiple times.
	Close() error
}

// LastModifiedProvider is implemented by providers that can report when a
// namespace was last written.
type LastModifiedProvider interface {
	LastModified(ctx context.Context, namespace string) (time.Time, error)
}

// SortPostings orders postings by frequency, highest first. Postings with equal
// frequency keep insertion order.
func SortPostings(postings []Posting) {
	slices.SortStableFunc(postings, func(a, b Posting) int {
		if a.Frequency != b.Frequency {
			if a.Frequency > b.Frequency {
				return -1
			}
			return 1
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}

// MakeSeq packs a segment number and an in-segment position into a Seq value.
func MakeSeq(segment uint64, position uint32) uint64 {
	return segment<<32 | uint64(position)
}
