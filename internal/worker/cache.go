package worker

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/kimhsiao/fitnix/console/internal/db"
	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
)

// CacheStorage is a set of named collections of stored responses keyed by
// request method and full URL.
type CacheStorage interface {
	// Keys lists the collection names.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a collection, reporting whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Match finds a stored response for req in any collection.
	Match(ctx context.Context, req *http.Request) (*http.Response, bool, error)
	// Put stores resp for req in the named collection. resp.Body is consumed
	// and replaced so the caller can still read it.
	Put(ctx context.Context, name string, req *http.Request, resp *http.Response) error
}

type storedResponse struct {
	status int
	header http.Header
	body   []byte
}

func (s storedResponse) toResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.status, http.StatusText(s.status)),
		StatusCode:    s.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
		Request:       req,
	}
}

func capture(resp *http.Response) (storedResponse, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return storedResponse{}, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return storedResponse{status: resp.StatusCode, header: header, body: body}, nil
}

func requestKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

// MemoryCacheStorage keeps collections in process memory.
type MemoryCacheStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]storedResponse
}

// NewMemoryCacheStorage creates an empty MemoryCacheStorage.
func NewMemoryCacheStorage() *MemoryCacheStorage {
	return &MemoryCacheStorage{caches: make(map[string]map[string]storedResponse)}
}

func (m *MemoryCacheStorage) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryCacheStorage) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.caches[name]
	delete(m.caches, name)
	return ok, nil
}

func (m *MemoryCacheStorage) Match(_ context.Context, req *http.Request) (*http.Response, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)

	key := requestKey(req)
	for _, name := range names {
		if s, ok := m.caches[name][key]; ok {
			return s.toResponse(req), true, nil
		}
	}
	return nil, false, nil
}

func (m *MemoryCacheStorage) Put(_ context.Context, name string, req *http.Request, resp *http.Response) error {
	s, err := capture(resp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.caches[name] == nil {
		m.caches[name] = make(map[string]storedResponse)
	}
	m.caches[name][requestKey(req)] = s
	return nil
}

// SQLiteCacheStorage keeps collections in the response_cache table so they
// outlive the process until the next activation purge.
type SQLiteCacheStorage struct {
	handle *db.Handle
	now    func() time.Time
}

// NewSQLiteCacheStorage creates a cache storage over the shared database
// handle.
func NewSQLiteCacheStorage(handle *db.Handle) *SQLiteCacheStorage {
	return &SQLiteCacheStorage{handle: handle, now: time.Now}
}

func (c *SQLiteCacheStorage) conn(ctx context.Context) (*db.DB, error) {
	conn, err := c.handle.Get(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to open response cache", err)
	}
	return conn, nil
}

func (c *SQLiteCacheStorage) Keys(ctx context.Context) ([]string, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT DISTINCT cache_name FROM response_cache ORDER BY cache_name`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to list caches", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to read cache name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *SQLiteCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return false, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM response_cache WHERE cache_name = ?`, name)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to delete cache", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *SQLiteCacheStorage) Match(ctx context.Context, req *http.Request) (*http.Response, bool, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, false, err
	}

	var (
		s      storedResponse
		header string
	)
	err = conn.QueryRowContext(ctx,
		`SELECT status, header, body FROM response_cache
		 WHERE method = ? AND url = ?
		 ORDER BY cache_name LIMIT 1`,
		req.Method, req.URL.String()).Scan(&s.status, &header, &s.body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to match cached response", err)
	}
	if err := json.Unmarshal([]byte(header), &s.header); err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrInternal, "failed to decode cached headers", err)
	}
	return s.toResponse(req), true, nil
}

func (c *SQLiteCacheStorage) Put(ctx context.Context, name string, req *http.Request, resp *http.Response) error {
	s, err := capture(resp)
	if err != nil {
		return err
	}
	header, err := json.Marshal(s.header)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode headers", err)
	}

	conn, err := c.conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx,
		`INSERT INTO response_cache (cache_name, method, url, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_name, method, url) DO UPDATE SET
		   status = excluded.status, header = excluded.header,
		   body = excluded.body, stored_at = excluded.stored_at`,
		name, req.Method, req.URL.String(), s.status, string(header), s.body, c.now().Unix())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to store response", err)
	}
	return nil
}
