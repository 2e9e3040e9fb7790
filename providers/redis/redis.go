// Package redis implements the suggestion index Provider interface using Redis as the storage backend.
// Every fragment is a sorted set whose members are entry identifiers scored by document
// frequency. A segment is queued in a MULTI/EXEC transaction and becomes visible
// atomically when the transaction executes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/remiges-tech/termsuggest/providers"
)

const (
	// prefixFragment is the Redis key prefix for sorted sets storing fragment → entry IDs scored by frequency.
	prefixFragment = "ts:frag:"

	// prefixWord is the Redis key prefix for hash maps storing entry ID → original word.
	prefixWord = "ts:word:"

	// prefixField is the Redis key prefix for hash maps storing entry ID → corpus field.
	prefixField = "ts:field:"

	// prefixSegment is the Redis key prefix for the segment number counter.
	prefixSegment = "ts:seg:"

	// prefixModified is the Redis key prefix for the last commit time in Unix nanoseconds.
	prefixModified = "ts:modified:"

	// memberFormat is the format for sorted set members: segment:position.
	// Zero padding keeps lexicographic order equal to insertion order.
	memberFormat = "%010d:%010d"

	// scanBatchSize is the COUNT hint for SCAN during Reset.
	scanBatchSize = 500
)

// Provider implements the Provider interface using Redis.
// All methods are safe for concurrent use.
type Provider struct {
	client *redis.Client
}

// Config holds Redis connection parameters.
type Config struct {
	// Addr is the Redis server address in the format "host:port".
	Addr string

	// Password is the Redis password (empty string for no password).
	Password string

	// DB is the Redis database number (0-15, default is 0).
	// Redis Cluster only supports DB 0.
	DB int
}

// New creates a new Redis provider with the given configuration.
// It establishes a connection to Redis and verifies connectivity with a PING command.
func New(config Config) (*Provider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password, // pragma: allowlist secret
		DB:       config.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Provider{
		client: client,
	}, nil
}

// BeginSegment reserves a segment number and opens a transaction for the segment's writes.
func (p *Provider) BeginSegment(ctx context.Context, namespace, field string) (providers.SegmentWriter, error) {
	id, err := p.client.Incr(ctx, prefixSegment+namespace).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate segment number: %w", err)
	}
	return &segmentWriter{
		namespace: namespace,
		segment:   uint64(id),
		pipe:      p.client.TxPipeline(),
	}, nil
}

// Lookup returns the top postings of fragment.
//
// Redis orders equal scores by member in reverse for ZREVRANGE, so when the first
// page is full every member sharing the lowest returned score is fetched again in
// ascending member order before the page is cut to limit.
func (p *Provider) Lookup(ctx context.Context, namespace, fragment string, limit int) ([]providers.Posting, error) {
	key := prefixFragment + namespace + ":" + fragment
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	top, err := p.client.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query fragment: %w", err)
	}
	if len(top) == 0 {
		return []providers.Posting{}, nil
	}

	members := top
	if limit > 0 && len(top) == limit {
		floor := top[len(top)-1].Score
		ties, err := p.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min: formatScore(floor),
			Max: formatScore(floor),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to query fragment ties: %w", err)
		}
		members = make([]redis.Z, 0, len(top)+len(ties))
		for _, z := range top {
			if z.Score > floor {
				members = append(members, z)
			}
		}
		members = append(members, ties...)
	}

	postings := make([]providers.Posting, 0, len(members))
	for _, z := range members {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		seq, err := parseMember(member)
		if err != nil {
			return nil, err
		}
		postings = append(postings, providers.Posting{Frequency: int(z.Score), Seq: seq})
	}
	providers.SortPostings(postings)
	if limit > 0 && len(postings) > limit {
		postings = postings[:limit]
	}
	return p.fetchEntries(ctx, namespace, postings)
}

// fetchEntries fills in word and field for postings.
func (p *Provider) fetchEntries(ctx context.Context, namespace string, postings []providers.Posting) ([]providers.Posting, error) {
	ids := make([]string, len(postings))
	for i, posting := range postings {
		ids[i] = createMember(posting.Seq)
	}

	pipe := p.client.Pipeline()
	wordsCmd := pipe.HMGet(ctx, prefixWord+namespace, ids...)
	fieldsCmd := pipe.HMGet(ctx, prefixField+namespace, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch entries: %w", err)
	}
	words := wordsCmd.Val()
	fields := fieldsCmd.Val()

	out := postings[:0]
	for i, posting := range postings {
		word, ok := words[i].(string)
		if !ok {
			// Entry removed by a concurrent reset.
			continue
		}
		posting.Word = word
		if field, ok := fields[i].(string); ok {
			posting.Field = field
		}
		out = append(out, posting)
	}
	return out, nil
}

// Reset deletes every key of namespace.
func (p *Provider) Reset(ctx context.Context, namespace string) error {
	pattern := prefixFragment + escapePattern(namespace) + ":*"
	var cursor uint64
	for {
		keys, next, err := p.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan namespace keys: %w", err)
		}
		if len(keys) > 0 {
			if err := p.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete fragment keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	pipe := p.client.Pipeline()
	pipe.Del(ctx, prefixWord+namespace)
	pipe.Del(ctx, prefixField+namespace)
	pipe.Del(ctx, prefixModified+namespace)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh is a no-op: a committed segment is visible as soon as its transaction executes.
func (p *Provider) Refresh(ctx context.Context) error {
	return nil
}

// LastModified returns the time of the last commit to namespace, or the zero time if none.
func (p *Provider) LastModified(ctx context.Context, namespace string) (time.Time, error) {
	v, err := p.client.Get(ctx, prefixModified+namespace).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read modification time: %w", err)
	}
	return time.Unix(0, v), nil
}

// Close closes the Redis connection
func (p *Provider) Close() error {
	err := p.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// segmentWriter queues one segment's writes in a MULTI/EXEC pipeline.
type segmentWriter struct {
	namespace string
	segment   uint64
	position  uint32
	pipe      redis.Pipeliner
}

func (w *segmentWriter) Add(ctx context.Context, entry providers.Entry) error {
	if w.pipe == nil {
		return errors.New("segment already finished")
	}
	member := createMember(providers.MakeSeq(w.segment, w.position))
	w.position++

	seen := make(map[string]struct{}, len(entry.Fragments))
	for _, f := range entry.Fragments {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		w.pipe.ZAdd(ctx, prefixFragment+w.namespace+":"+f, &redis.Z{
			Score:  float64(entry.Frequency),
			Member: member,
		})
	}
	w.pipe.HSet(ctx, prefixWord+w.namespace, member, entry.Word)
	w.pipe.HSet(ctx, prefixField+w.namespace, member, entry.Field)
	return nil
}

func (w *segmentWriter) Commit(ctx context.Context) error {
	if w.pipe == nil {
		return errors.New("segment already finished")
	}
	pipe := w.pipe
	w.pipe = nil
	pipe.Set(ctx, prefixModified+w.namespace, time.Now().UnixNano(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit segment %d: %w", w.segment, err)
	}
	return nil
}

func (w *segmentWriter) Abort(ctx context.Context) error {
	if w.pipe == nil {
		return nil
	}
	err := w.pipe.Discard()
	w.pipe = nil
	return err
}

func createMember(seq uint64) string {
	return fmt.Sprintf(memberFormat, seq>>32, seq&0xffffffff)
}

func parseMember(member string) (uint64, error) {
	segStr, posStr, ok := strings.Cut(member, ":")
	if !ok {
		return 0, fmt.Errorf("malformed entry id %q", member)
	}
	seg, err := strconv.ParseUint(segStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed entry id %q: %w", member, err)
	}
	pos, err := strconv.ParseUint(posStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed entry id %q: %w", member, err)
	}
	return providers.MakeSeq(seg, uint32(pos)), nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// escapePattern quotes the glob metacharacters understood by SCAN MATCH.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
