// Package fixture replays a captured upstream session from a JSON document.
//
// The document has the shape
//
//	{"search": [...], "details": {"<note id>": {...}}, "comments": {"<note id>": [...]}}
//
// and lets a full run execute offline.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"sync"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

// Document is the captured session.
type Document struct {
	Search   []crawler.RawItem            `json:"search"`
	Details  map[string]crawler.RawItem   `json:"details"`
	Comments map[string][]crawler.RawItem `json:"comments"`
}

// Upstream serves a Document. It satisfies crawler.Upstream.
type Upstream struct {
	doc Document

	mu    sync.Mutex
	calls []string
}

// New wraps an in-memory document.
func New(doc Document) *Upstream {
	return &Upstream{doc: doc}
}

// Load reads a document from path.
func Load(path string) (*Upstream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return Decode(f)
}

// Decode reads a document from r.
func Decode(r io.Reader) (*Upstream, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return New(doc), nil
}

// Calls returns the operations served so far, in order.
func (u *Upstream) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.calls...)
}

func (u *Upstream) record(call string) {
	u.mu.Lock()
	u.calls = append(u.calls, call)
	u.mu.Unlock()
}

// Search returns at most req.Count captured items.
func (u *Upstream) Search(ctx context.Context, req crawler.SearchRequest) ([]crawler.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpSearch, "", err)
	}
	u.record("search:" + req.Query)
	items := u.doc.Search
	if req.Count > 0 && len(items) > req.Count {
		items = items[:req.Count]
	}
	return append([]crawler.RawItem{}, items...), nil
}

// FetchDetail looks the note up by the last path segment of noteURL.
func (u *Upstream) FetchDetail(ctx context.Context, noteURL string, _ crawler.Credential) (crawler.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpDetail, "", err)
	}
	id := noteIDFromURL(noteURL)
	u.record("detail:" + id)
	item, ok := u.doc.Details[id]
	if !ok {
		return nil, crawler.NewUpstreamError(crawler.OpDetail, "note "+id+" not captured", nil)
	}
	return item, nil
}

// FetchComments returns the captured comments of noteID.
func (u *Upstream) FetchComments(
	ctx context.Context,
	noteID, _ string,
	_ crawler.Credential,
) ([]crawler.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpComments, "", err)
	}
	u.record("comments:" + noteID)
	items, ok := u.doc.Comments[noteID]
	if !ok {
		return nil, crawler.NewUpstreamError(crawler.OpComments, "comments of "+noteID+" not captured", nil)
	}
	return append([]crawler.RawItem{}, items...), nil
}

func noteIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return path.Base(u.Path)
}
