// Package qdrant provides a storage.VectorStore backed by the Qdrant REST API.
//
// Record ids are arbitrary strings while Qdrant point ids must be unsigned
// integers or UUIDs, so every point id is a name-based UUID derived from the
// record id. The original id travels in the payload under "_id"; the rest of
// the payload is the record metadata.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

const (
	idPayloadKey   = "_id"
	defaultTimeout = 15 * time.Second
)

var (
	// ErrRequestFailed indicates Qdrant answered with a non-success status.
	ErrRequestFailed = errors.New("qdrant request failed")

	// ErrMissingVector indicates an upsert of a record without a vector.
	ErrMissingVector = errors.New("qdrant points require a vector")
)

// Config holds connection settings.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithHTTPClient replaces the HTTP client. Mostly useful in tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) error {
		s.client = client
		return nil
	}
}

// Store is a minimal REST client to Qdrant implementing storage.VectorStore.
// It assumes cosine distance and creates the collection on first upsert.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	ready bool
}

var _ storage.VectorStore = (*Store)(nil)

// NewVectorStore creates a Qdrant-backed VectorStore.
func NewVectorStore(cfg Config, opts ...Option) (storage.VectorStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	s := &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "qdrant", "collection", s.collection)
	return s, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// PointID returns the Qdrant point id for a record id.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

type point struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload"`
}

// Upsert inserts or replaces records by id.
func (s *Store) Upsert(ctx context.Context, records ...core.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]point, len(records))
	for i, rec := range records {
		if rec.Id == "" {
			return fmt.Errorf("%w: record id is empty", core.ErrInvalidRecord)
		}
		if len(rec.Vector) == 0 {
			return fmt.Errorf("%w: record %s", ErrMissingVector, rec.Id)
		}
		payload := make(map[string]string, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			payload[k] = v
		}
		payload[idPayloadKey] = rec.Id
		points[i] = point{ID: PointID(rec.Id), Vector: rec.Vector, Payload: payload}
	}

	if err := s.ensureCollection(ctx, len(records[0].Vector)); err != nil {
		return err
	}
	found, err := s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if !found {
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
		return fmt.Errorf("%w: collection %s not found", ErrRequestFailed, s.collection)
	}
	return nil
}

type scoredPoint struct {
	Score   float32           `json:"score"`
	Payload map[string]string `json:"payload"`
}

// Query returns up to req.TopK matching records.
// Filter-only queries scroll the collection in point id order.
func (s *Store) Query(ctx context.Context, req storage.QueryRequest) ([]core.Match, error) {
	if req.TopK <= 0 {
		return nil, fmt.Errorf("%w: top k must be positive, got %d", storage.ErrInvalidQuery, req.TopK)
	}

	var withPayload any = []string{idPayloadKey}
	if req.IncludeMetadata {
		withPayload = true
	}
	body := map[string]any{
		"limit":        req.TopK,
		"with_payload": withPayload,
		"with_vector":  false,
	}
	if f := buildFilter(req.Filter); f != nil {
		body["filter"] = f
	}

	var points []scoredPoint
	if len(req.Vector) == 0 {
		var resp struct {
			Result struct {
				Points []scoredPoint `json:"points"`
			} `json:"result"`
		}
		found, err := s.do(ctx, http.MethodPost, s.collectionPath("/points/scroll"), body, &resp)
		if err != nil || !found {
			return nil, err
		}
		points = resp.Result.Points
	} else {
		body["vector"] = req.Vector
		var resp struct {
			Result []scoredPoint `json:"result"`
		}
		found, err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), body, &resp)
		if err != nil || !found {
			return nil, err
		}
		points = resp.Result
	}

	matches := make([]core.Match, 0, len(points))
	for _, p := range points {
		id := p.Payload[idPayloadKey]
		if id == "" {
			s.logger.Warn("skipping point without record id")
			continue
		}
		match := core.Match{Record: core.Record{Id: id}, Score: p.Score}
		if req.IncludeMetadata {
			delete(p.Payload, idPayloadKey)
			match.Record.Metadata = p.Payload
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	_, err := s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func buildFilter(filter core.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	must := make([]map[string]any, len(keys))
	for i, k := range keys {
		must[i] = map[string]any{
			"key":   k,
			"match": map[string]any{"value": filter[k]},
		}
	}
	return map[string]any{"must": must}
}

// ensureCollection creates the collection with the given dimension if missing.
func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	found, err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, nil)
	if err != nil {
		return err
	}
	if !found {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
			return err
		}
		s.logger.Info("created collection", "dimension", dimension)
	}
	s.ready = true
	return nil
}

func (s *Store) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out when non-nil.
// A 404 is reported as found=false rather than an error.
func (s *Store) do(ctx context.Context, method, url string, body, out any) (found bool, err error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: %s %s: %s: %s", ErrRequestFailed, method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return true, fmt.Errorf("decoding qdrant response: %w", err)
		}
	}
	return true, nil
}
