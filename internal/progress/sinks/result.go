package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/hash/sha256"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher digests a stored document.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// ResultSink writes the final event of each successful or completed run as
// an indented JSON document named search_result_{query}_{timestamp}.json.
type ResultSink struct {
	store  BlobStore
	prefix string
	hasher Hasher
	logger *zap.Logger
}

// NewResultSink builds a ResultSink writing under prefix.
func NewResultSink(store BlobStore, prefix string, logger *zap.Logger) *ResultSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultSink{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		hasher: sha256.New(),
		logger: logger,
	}
}

// Deliver stores terminal, non-failed events.
func (s *ResultSink) Deliver(ctx context.Context, evt progress.LifecycleEvent) error {
	if evt.Status != crawler.RunStatusSuccess && evt.Status != crawler.RunStatusCompleted {
		return nil
	}
	body, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	path := ResultPath(s.prefix, evt)
	uri, err := s.store.PutObject(ctx, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("store result %s: %w", path, err)
	}
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return fmt.Errorf("hash result %s: %w", path, err)
	}
	s.logger.Info("result saved",
		zap.String("run_id", evt.RunID),
		zap.String("uri", uri),
		zap.String("sha256", digest),
		zap.Int("bytes", len(body)),
		zap.Int("notes", len(evt.Data.Notes)),
	)
	return nil
}

// ResultPath names the result document for evt.
func ResultPath(prefix string, evt progress.LifecycleEvent) string {
	name := fmt.Sprintf("search_result_%s_%s.json",
		sanitizeQuery(evt.Data.Query),
		evt.Timestamp.Format("20060102_150405"),
	)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func sanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return "query"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, q)
}
