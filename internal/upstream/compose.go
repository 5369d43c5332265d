package upstream

import (
	"context"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

// Composite routes detail lookups to a dedicated fetcher while search and
// comments go to the base upstream.
type Composite struct {
	base   crawler.Upstream
	detail crawler.DetailFetcher
}

// Compose returns base unchanged when detail is nil.
func Compose(base crawler.Upstream, detail crawler.DetailFetcher) crawler.Upstream {
	if detail == nil {
		return base
	}
	return &Composite{base: base, detail: detail}
}

// Search delegates to the base upstream.
func (c *Composite) Search(ctx context.Context, req crawler.SearchRequest) ([]crawler.RawItem, error) {
	return c.base.Search(ctx, req)
}

// FetchDetail delegates to the detail fetcher.
func (c *Composite) FetchDetail(ctx context.Context, noteURL string, cred crawler.Credential) (crawler.RawItem, error) {
	return c.detail.FetchDetail(ctx, noteURL, cred)
}

// FetchComments delegates to the base upstream.
func (c *Composite) FetchComments(
	ctx context.Context,
	noteID, xsecToken string,
	cred crawler.Credential,
) ([]crawler.RawItem, error) {
	return c.base.FetchComments(ctx, noteID, xsecToken, cred)
}
