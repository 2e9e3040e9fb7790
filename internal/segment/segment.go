// Package segment implements the immutable unit of suggestion index content: the
// entries of one corpus field plus an inverted map from prefix fragment to the
// positions of the entries carrying it.
//
// Postings are roaring bitmaps of entry positions. Iterating a bitmap yields positions
// in ascending order, which is also insertion order, so ties on frequency are broken
// without storing anything extra.
//
// Segments serialize with msgpack; callers add compression and atomic file placement.
package segment

import (
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/remiges-tech/termsuggest/providers"
)

// formatVersion is bumped whenever the encoded layout changes.
const formatVersion = 1

// Segment is a finalized, read-only set of entries. Safe for concurrent reads.
type Segment struct {
	id          uint64
	field       string
	words       []string
	frequencies []int
	postings    map[string]*roaring.Bitmap
}

// ID returns the segment number.
func (s *Segment) ID() uint64 { return s.id }

// Field returns the corpus field the segment was built from.
func (s *Segment) Field() string { return s.field }

// Len returns the number of entries.
func (s *Segment) Len() int { return len(s.words) }

// Lookup returns the postings stored under fragment, sorted with providers.SortPostings.
func (s *Segment) Lookup(fragment string) []providers.Posting {
	bm, ok := s.postings[fragment]
	if !ok {
		return nil
	}
	postings := make([]providers.Posting, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		pos := it.Next()
		postings = append(postings, providers.Posting{
			Word:      s.words[pos],
			Field:     s.field,
			Frequency: s.frequencies[pos],
			Seq:       providers.MakeSeq(s.id, pos),
		})
	}
	providers.SortPostings(postings)
	return postings
}

// Builder accumulates entries for a segment that is not yet visible.
type Builder struct {
	seg *Segment
}

// NewBuilder starts an empty segment.
func NewBuilder(id uint64, field string) *Builder {
	return &Builder{seg: &Segment{
		id:       id,
		field:    field,
		postings: make(map[string]*roaring.Bitmap),
	}}
}

// Add appends an entry and posts it under each of its fragments.
func (b *Builder) Add(e providers.Entry) {
	pos := uint32(len(b.seg.words))
	b.seg.words = append(b.seg.words, e.Word)
	b.seg.frequencies = append(b.seg.frequencies, e.Frequency)
	for _, f := range e.Fragments {
		bm := b.seg.postings[f]
		if bm == nil {
			bm = roaring.New()
			b.seg.postings[f] = bm
		}
		bm.Add(pos)
	}
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.seg.words) }

// Build finalizes the segment. The builder must not be used afterwards.
func (b *Builder) Build() *Segment {
	for _, bm := range b.seg.postings {
		bm.RunOptimize()
	}
	seg := b.seg
	b.seg = nil
	return seg
}

// encodedSegment is the on-disk layout.
type encodedSegment struct {
	Version     int               `msgpack:"v"`
	ID          uint64            `msgpack:"id"`
	Field       string            `msgpack:"field"`
	Words       []string          `msgpack:"words"`
	Frequencies []int             `msgpack:"freqs"`
	Postings    map[string][]byte `msgpack:"postings"`
}

// Encode writes the segment to w.
func (s *Segment) Encode(w io.Writer) error {
	enc := encodedSegment{
		Version:     formatVersion,
		ID:          s.id,
		Field:       s.field,
		Words:       s.words,
		Frequencies: s.frequencies,
		Postings:    make(map[string][]byte, len(s.postings)),
	}
	for fragment, bm := range s.postings {
		data, err := bm.ToBytes()
		if err != nil {
			return fmt.Errorf("failed to serialize postings of %q: %w", fragment, err)
		}
		enc.Postings[fragment] = data
	}
	if err := msgpack.NewEncoder(w).Encode(&enc); err != nil {
		return fmt.Errorf("failed to encode segment %d: %w", s.id, err)
	}
	return nil
}

// Decode reads a segment written by Encode.
func Decode(r io.Reader) (*Segment, error) {
	var enc encodedSegment
	if err := msgpack.NewDecoder(r).Decode(&enc); err != nil {
		return nil, fmt.Errorf("failed to decode segment: %w", err)
	}
	if enc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", enc.Version)
	}
	if len(enc.Words) != len(enc.Frequencies) {
		return nil, fmt.Errorf("corrupt segment %d: %d words, %d frequencies", enc.ID, len(enc.Words), len(enc.Frequencies))
	}

	seg := &Segment{
		id:          enc.ID,
		field:       enc.Field,
		words:       enc.Words,
		frequencies: enc.Frequencies,
		postings:    make(map[string]*roaring.Bitmap, len(enc.Postings)),
	}
	for fragment, data := range enc.Postings {
		bm := roaring.New()
		if err := bm.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("corrupt postings for %q in segment %d: %w", fragment, enc.ID, err)
		}
		if !bm.IsEmpty() && int(bm.Maximum()) >= len(seg.words) {
			return nil, fmt.Errorf("corrupt postings for %q in segment %d: position out of range", fragment, enc.ID)
		}
		seg.postings[fragment] = bm
	}
	return seg, nil
}

// Lookup collects fragment postings across segments, sorted and limited to limit.
func Lookup(segments []*Segment, fragment string, limit int) []providers.Posting {
	postings := []providers.Posting{}
	for _, s := range segments {
		postings = append(postings, s.Lookup(fragment)...)
	}
	providers.SortPostings(postings)
	if limit > 0 && len(postings) > limit {
		postings = postings[:limit]
	}
	return postings
}
