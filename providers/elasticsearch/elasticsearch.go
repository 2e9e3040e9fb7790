package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/remiges-tech/termsuggest/providers"
)

const (
	// defaultLookupSize is the search size used when Lookup is called without a limit.
	defaultLookupSize = 10000

	// indexMappingTemplate is the Elasticsearch index mapping for suggestion entries.
	// Automatic refresh is disabled: a segment becomes searchable when its commit
	// issues an explicit refresh.
	indexMappingTemplate = `{
		"settings": {
			"number_of_shards": %d,
			"number_of_replicas": %d,
			"refresh_interval": "-1"
		},
		"mappings": {
			"properties": {
				"namespace": {"type": "keyword"},
				"field": {"type": "keyword"},
				"word": {"type": "keyword", "index": false},
				"fragments": {"type": "keyword"},
				"frequency": {"type": "integer"},
				"segment": {"type": "long"},
				"seq": {"type": "unsigned_long"},
				"committed_at": {"type": "date", "format": "epoch_millis"}
			}
		}
	}`
)

// Provider implements the Provider interface using Elasticsearch.
// All methods are safe for concurrent use.
type Provider struct {
	client   *elasticsearch.Client
	index    string
	bulkSize int

	mu          sync.Mutex
	lastSegment map[string]uint64
}

// document represents the structure stored in Elasticsearch.
type document struct {
	Namespace   string   `json:"namespace"`
	Field       string   `json:"field"`
	Word        string   `json:"word"`
	Fragments   []string `json:"fragments"`
	Frequency   int      `json:"frequency"`
	Segment     uint64   `json:"segment"`
	Seq         uint64   `json:"seq"`
	CommittedAt int64    `json:"committed_at"`
}

// searchHit represents a single search result from Elasticsearch.
type searchHit struct {
	Source document `json:"_source"`
}

// searchResponse represents the Elasticsearch search response.
type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// maxAggregation is the result of a "max" metric aggregation.
type maxAggregation struct {
	Value *float64 `json:"value"`
}

// bulkResponse is the part of a bulk response needed to detect item failures.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// newClient builds a client from the connection settings of config and checks connectivity.
func newClient(config *Config) (*elasticsearch.Client, error) {
	esConfig := elasticsearch.Config{
		Addresses: config.URLs,
		Username:  config.Username,
		Password:  config.Password,
		CloudID:   config.CloudID,
		APIKey:    config.APIKey,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch connection error: %s", res.String())
	}
	return client, nil
}

// New creates a new Elasticsearch provider with the given configuration.
// The index is created with the suggestion mapping if it does not exist.
func New(config *Config) (*Provider, error) {
	config.setDefaults()
	if config.Index == "" {
		return nil, errors.New("elasticsearch provider requires an index name")
	}

	client, err := newClient(config)
	if err != nil {
		return nil, err
	}

	provider := &Provider{
		client:      client,
		index:       config.Index,
		bulkSize:    config.BulkSize,
		lastSegment: make(map[string]uint64),
	}

	if err := provider.createIndexIfNotExists(config); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return provider, nil
}

// createIndexIfNotExists creates the index with appropriate mappings if it doesn't exist.
func (p *Provider) createIndexIfNotExists(config *Config) error {
	exists, err := p.indexExists()
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	mapping := fmt.Sprintf(indexMappingTemplate, config.NumberOfShards, config.NumberOfReplicas)

	req := esapi.IndicesCreateRequest{
		Index: p.index,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(context.Background(), p.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}

	return nil
}

// indexExists checks if the index exists.
func (p *Provider) indexExists() (bool, error) {
	req := esapi.IndicesExistsRequest{
		Index: []string{p.index},
	}

	res, err := req.Do(context.Background(), p.client)
	if err != nil {
		return false, err
	}
	defer func() { _ = res.Body.Close() }()

	const httpOK = 200
	return res.StatusCode == httpOK, nil
}

// BeginSegment allocates the next segment number of namespace.
func (p *Provider) BeginSegment(ctx context.Context, namespace, field string) (providers.SegmentWriter, error) {
	stored, err := p.maxValue(ctx, namespace, "segment")
	if err != nil {
		return nil, fmt.Errorf("failed to allocate segment number: %w", err)
	}

	p.mu.Lock()
	next := max(uint64(stored), p.lastSegment[namespace]) + 1
	p.lastSegment[namespace] = next
	p.mu.Unlock()

	return &segmentWriter{
		provider:  p,
		namespace: namespace,
		field:     field,
		segment:   next,
	}, nil
}

// Lookup returns the postings of fragment, most frequent first, ties in insertion order.
func (p *Provider) Lookup(ctx context.Context, namespace, fragment string, limit int) ([]providers.Posting, error) {
	size := limit
	if size <= 0 {
		size = defaultLookupSize
	}
	query := map[string]interface{}{
		"query": namespaceFilter(namespace, map[string]interface{}{
			"term": map[string]interface{}{"fragments": fragment},
		}),
		"sort": []interface{}{
			map[string]interface{}{"frequency": "desc"},
			map[string]interface{}{"seq": "asc"},
		},
		"_source": []string{"field", "word", "frequency", "seq"},
	}

	var response searchResponse
	if err := p.search(ctx, query, size, &response); err != nil {
		return nil, err
	}

	postings := make([]providers.Posting, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		postings = append(postings, providers.Posting{
			Word:      hit.Source.Word,
			Field:     hit.Source.Field,
			Frequency: hit.Source.Frequency,
			Seq:       hit.Source.Seq,
		})
	}
	providers.SortPostings(postings)
	return postings, nil
}

// Reset removes all entries of namespace and refreshes the index.
// The index is refreshed first so that documents left unrefreshed by an
// interrupted build are matched by the delete.
func (p *Provider) Reset(ctx context.Context, namespace string) error {
	if err := p.refresh(ctx); err != nil {
		return err
	}
	query := map[string]interface{}{
		"query": namespaceFilter(namespace),
	}
	if err := p.deleteByQuery(ctx, query); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.lastSegment, namespace)
	p.mu.Unlock()
	return nil
}

// Refresh is a no-op: a segment is made searchable by its own commit.
func (p *Provider) Refresh(ctx context.Context) error {
	return nil
}

// LastModified returns the newest commit time of namespace, or the zero time if it is empty.
func (p *Provider) LastModified(ctx context.Context, namespace string) (time.Time, error) {
	millis, err := p.maxValue(ctx, namespace, "committed_at")
	if err != nil {
		return time.Time{}, err
	}
	if millis == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(int64(millis)), nil
}

// Close closes the provider connection.
func (p *Provider) Close() error {
	// The Elasticsearch Go client doesn't have a Close method
	// as it uses standard HTTP connections that are managed by Go's http package
	return nil
}

// maxValue returns the max of a numeric field over namespace, 0 when it has no documents.
func (p *Provider) maxValue(ctx context.Context, namespace, field string) (float64, error) {
	query := map[string]interface{}{
		"query": namespaceFilter(namespace),
		"aggs": map[string]interface{}{
			"max_value": map[string]interface{}{
				"max": map[string]interface{}{"field": field},
			},
		},
	}
	var response searchResponse
	if err := p.search(ctx, query, 0, &response); err != nil {
		return 0, err
	}
	raw, ok := response.Aggregations["max_value"]
	if !ok {
		return 0, nil
	}
	var agg maxAggregation
	if err := json.Unmarshal(raw, &agg); err != nil {
		return 0, fmt.Errorf("failed to decode aggregation: %w", err)
	}
	if agg.Value == nil {
		return 0, nil
	}
	return *agg.Value, nil
}

func (p *Provider) search(ctx context.Context, query map[string]interface{}, size int, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{p.index},
		Body:  &buf,
		Size:  &size,
	}

	res, err := req.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("failed to execute search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("search failed: %s", res.String())
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (p *Provider) deleteByQuery(ctx context.Context, query map[string]interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:     []string{p.index},
		Body:      &buf,
		Refresh:   &refresh,
		Conflicts: "proceed",
	}

	res, err := req.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("failed to delete by query: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("failed to delete by query: %s", res.String())
	}

	return nil
}

func (p *Provider) refresh(ctx context.Context) error {
	req := esapi.IndicesRefreshRequest{
		Index: []string{p.index},
	}

	res, err := req.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("failed to refresh index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("failed to refresh index: %s", res.String())
	}
	return nil
}

// bulkIndex sends docs in one bulk request and fails if any item failed.
func (p *Provider) bulkIndex(ctx context.Context, docs []document) error {
	body, err := encodeBulk(docs)
	if err != nil {
		return err
	}
	return p.bulk(ctx, body)
}

// bulkDelete removes the documents with the given IDs, bulkSize IDs per request.
// Deletes by ID also reach documents that were indexed but not yet refreshed.
func (p *Provider) bulkDelete(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += p.bulkSize {
		end := min(start+p.bulkSize, len(ids))
		body, err := encodeBulkDelete(ids[start:end])
		if err != nil {
			return err
		}
		if err := p.bulk(ctx, body); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) bulk(ctx context.Context, body io.Reader) error {
	req := esapi.BulkRequest{
		Index: p.index,
		Body:  body,
	}

	res, err := req.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("failed to send bulk request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("bulk request failed: %s", res.String())
	}
	return checkBulkResponse(res.Body)
}

// encodeBulk renders docs as an NDJSON bulk body of index actions.
func encodeBulk(docs []document) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]interface{}{
			"index": map[string]interface{}{"_id": generateDocumentID(doc.Namespace, doc.Seq)},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
	}
	return &buf, nil
}

// encodeBulkDelete renders ids as an NDJSON bulk body of delete actions.
func encodeBulkDelete(ids []string) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		action := map[string]interface{}{
			"delete": map[string]interface{}{"_id": id},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
	}
	return &buf, nil
}

// checkBulkResponse fails when any item failed. A delete of a missing document
// (404 without an error body) is not a failure.
func checkBulkResponse(body io.Reader) error {
	var response bulkResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !response.Errors {
		return nil
	}
	failed := 0
	var first string
	for _, item := range response.Items {
		for _, result := range item {
			if result.Status == 404 && result.Error.Type == "" {
				continue
			}
			if result.Status >= 300 {
				if failed == 0 {
					first = result.Error.Type + ": " + result.Error.Reason
				}
				failed++
			}
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("bulk request had %d failed items, first: %s", failed, first)
}

// namespaceFilter returns a bool query restricted to namespace, with extra filters.
func namespaceFilter(namespace string, filters ...map[string]interface{}) map[string]interface{} {
	clauses := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"namespace": namespace},
		},
	}
	for _, f := range filters {
		clauses = append(clauses, f)
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": clauses},
	}
}

// generateDocumentID creates a unique document ID from namespace and seq.
func generateDocumentID(namespace string, seq uint64) string {
	return fmt.Sprintf("%s:%d", namespace, seq)
}

// segmentWriter buffers entries and ships them in bulk requests. Documents are not
// searchable before the commit refresh because the index never refreshes by itself.
type segmentWriter struct {
	provider  *Provider
	namespace string
	field     string
	segment   uint64
	position  uint32
	pending   []document
	// flushed is the number of positions handed to a bulk request.
	flushed uint32
	done    bool
}

func (w *segmentWriter) Add(ctx context.Context, entry providers.Entry) error {
	if w.done {
		return errors.New("segment already finished")
	}
	w.pending = append(w.pending, document{
		Namespace: w.namespace,
		Field:     entry.Field,
		Word:      entry.Word,
		Fragments: uniqueFragments(entry.Fragments),
		Frequency: entry.Frequency,
		Segment:   w.segment,
		Seq:       providers.MakeSeq(w.segment, w.position),
	})
	w.position++
	if len(w.pending) >= w.provider.bulkSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *segmentWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for i := range w.pending {
		w.pending[i].CommittedAt = now
	}
	w.flushed = w.position
	if err := w.provider.bulkIndex(ctx, w.pending); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}

func (w *segmentWriter) Commit(ctx context.Context) error {
	if w.done {
		return errors.New("segment already finished")
	}
	if err := w.flush(ctx); err != nil {
		return err
	}
	w.done = true
	return w.provider.refresh(ctx)
}

// Abort deletes, by ID, every document of the segment already handed to Elasticsearch,
// then refreshes so the deletes apply to searchers.
func (w *segmentWriter) Abort(ctx context.Context) error {
	w.done = true
	w.pending = nil
	if w.flushed == 0 {
		return nil
	}
	ids := make([]string, w.flushed)
	for pos := uint32(0); pos < w.flushed; pos++ {
		ids[pos] = generateDocumentID(w.namespace, providers.MakeSeq(w.segment, pos))
	}
	w.flushed = 0
	if err := w.provider.bulkDelete(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete aborted segment %d: %w", w.segment, err)
	}
	return w.provider.refresh(ctx)
}

func uniqueFragments(fragments []string) []string {
	seen := make(map[string]struct{}, len(fragments))
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
