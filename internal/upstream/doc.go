// Package upstream holds the adapters that satisfy crawler.Upstream.
//
// gateway talks to an HTTP signing gateway, fixture replays a captured JSON
// document and page reads note detail straight from the public note page.
// Compose mixes a search/comment source with a separate detail source.
package upstream
