package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/remiges-tech/termsuggest"
)

// Corpus reads candidate terms from an existing Elasticsearch index.
//
// Only aggregatable string fields are listed: keyword fields, and text fields with a
// keyword sub-field. Distinct terms are enumerated with a composite aggregation,
// one page at a time, and the document counts of each page are kept so that
// DocumentFrequency rarely needs a separate count request.
type Corpus struct {
	client   *elasticsearch.Client
	index    string
	pageSize int

	mu       sync.Mutex
	aggField map[string]string
	counts   map[string]map[string]int
}

// NewCorpus connects with the connection settings of config and reads from index.
func NewCorpus(config *Config, index string) (*Corpus, error) {
	config.setDefaults()
	client, err := newClient(config)
	if err != nil {
		return nil, err
	}
	return &Corpus{
		client:   client,
		index:    index,
		pageSize: config.PageSize,
		counts:   make(map[string]map[string]int),
	}, nil
}

// mappingResponse is the subset of a get-mapping response that describes fields.
type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]fieldMapping `json:"properties"`
	} `json:"mappings"`
}

type fieldMapping struct {
	Type       string                  `json:"type"`
	Properties map[string]fieldMapping `json:"properties"`
	Fields     map[string]fieldMapping `json:"fields"`
}

// ListFields returns the aggregatable fields of the index, sorted by name.
func (c *Corpus) ListFields(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureMapping(ctx); err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(c.aggField))
	for f := range c.aggField {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields, nil
}

// ensureMapping loads the field mapping once. Callers hold c.mu.
func (c *Corpus) ensureMapping(ctx context.Context) error {
	if c.aggField != nil {
		return nil
	}
	aggField, err := c.loadMapping(ctx)
	if err != nil {
		return err
	}
	c.aggField = aggField
	return nil
}

func (c *Corpus) loadMapping(ctx context.Context) (map[string]string, error) {
	req := esapi.IndicesGetMappingRequest{
		Index: []string{c.index},
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("failed to get mapping: %s", res.String())
	}

	var mapping mappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mapping); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	aggField := make(map[string]string)
	for _, idx := range mapping {
		collectFields("", idx.Mappings.Properties, aggField)
	}
	return aggField, nil
}

// collectFields maps each aggregatable field path to the path that is aggregated.
func collectFields(prefix string, props map[string]fieldMapping, out map[string]string) {
	for name, m := range props {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch m.Type {
		case "keyword":
			out[path] = path
		case "text":
			if kw, ok := m.Fields["keyword"]; ok && kw.Type == "keyword" {
				out[path] = path + ".keyword"
			}
		case "", "object", "nested":
			collectFields(path, m.Properties, out)
		}
	}
}

func (c *Corpus) resolve(ctx context.Context, field string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureMapping(ctx); err != nil {
		return "", err
	}
	agg, ok := c.aggField[field]
	if !ok {
		return "", fmt.Errorf("field %q is not an aggregatable field of %s", field, c.index)
	}
	return agg, nil
}

// DistinctTerms enumerates the values of field in index order.
func (c *Corpus) DistinctTerms(ctx context.Context, field string) (termsuggest.TermIterator, error) {
	agg, err := c.resolve(ctx, field)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.counts[field] = make(map[string]int)
	c.mu.Unlock()
	return &compositeIterator{corpus: c, ctx: ctx, field: field, aggField: agg}, nil
}

// DocumentFrequency returns the number of documents whose field holds term.
// Counts seen while paging through DistinctTerms are answered without a request.
func (c *Corpus) DocumentFrequency(ctx context.Context, field, term string) (int, error) {
	c.mu.Lock()
	n, ok := c.counts[field][term]
	c.mu.Unlock()
	if ok {
		return n, nil
	}

	agg, err := c.resolve(ctx, field)
	if err != nil {
		return 0, err
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{agg: term},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return 0, fmt.Errorf("failed to encode query: %w", err)
	}
	req := esapi.CountRequest{
		Index: []string{c.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", res.String())
	}
	var count struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("failed to decode count: %w", err)
	}
	return count.Count, nil
}

// compositeResponse is the composite aggregation page of a search response.
type compositeResponse struct {
	Aggregations struct {
		Terms struct {
			AfterKey map[string]interface{} `json:"after_key"`
			Buckets  []struct {
				Key      map[string]interface{} `json:"key"`
				DocCount int                    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"terms"`
	} `json:"aggregations"`
}

// compositeIterator pages through a composite aggregation on one field.
type compositeIterator struct {
	corpus   *Corpus
	ctx      context.Context
	field    string
	aggField string

	page     []string
	pos      int
	afterKey map[string]interface{}
	last     bool
	err      error
}

func (it *compositeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	for it.pos >= len(it.page) {
		if it.last {
			return false
		}
		if err := it.fetch(); err != nil {
			it.err = err
			return false
		}
		it.pos = 0
	}
	return true
}

func (it *compositeIterator) fetch() error {
	composite := map[string]interface{}{
		"size": it.corpus.pageSize,
		"sources": []interface{}{
			map[string]interface{}{
				"term": map[string]interface{}{
					"terms": map[string]interface{}{"field": it.aggField},
				},
			},
		},
	}
	if it.afterKey != nil {
		composite["after"] = it.afterKey
	}
	query := map[string]interface{}{
		"aggs": map[string]interface{}{
			"terms": map[string]interface{}{"composite": composite},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	size := 0
	req := esapi.SearchRequest{
		Index: []string{it.corpus.index},
		Body:  &buf,
		Size:  &size,
	}
	res, err := req.Do(it.ctx, it.corpus.client)
	if err != nil {
		return fmt.Errorf("failed to execute search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("search failed: %s", res.String())
	}

	var response compositeResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	terms := response.Aggregations.Terms
	it.page = it.page[:0]
	it.corpus.mu.Lock()
	counts := it.corpus.counts[it.field]
	for _, b := range terms.Buckets {
		term, ok := b.Key["term"].(string)
		if !ok {
			continue
		}
		it.page = append(it.page, term)
		if counts != nil {
			counts[term] = b.DocCount
		}
	}
	it.corpus.mu.Unlock()

	it.afterKey = terms.AfterKey
	if terms.AfterKey == nil || len(terms.Buckets) < it.corpus.pageSize {
		it.last = true
	}
	return nil
}

func (it *compositeIterator) Term() string {
	if it.pos < 0 || it.pos >= len(it.page) {
		return ""
	}
	return it.page[it.pos]
}

func (it *compositeIterator) Err() error { return it.err }

// Close drops the document counts collected for the field.
func (it *compositeIterator) Close() error {
	it.corpus.mu.Lock()
	delete(it.corpus.counts, it.field)
	it.corpus.mu.Unlock()
	it.page = nil
	return nil
}
