// Package postgres archives the notes and comments of finished runs.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ArchiveConfig controls the Postgres connection pool and target tables.
type ArchiveConfig struct {
	DSN             string
	NotesTable      string
	CommentsTable   string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// NoteArchive upserts notes and comments keyed by run. Rows are never read
// back to resume a run.
type NoteArchive struct {
	pool          txPool
	notesTable    string
	commentsTable string
}

// NewNoteArchive connects to Postgres using cfg.
func NewNoteArchive(ctx context.Context, cfg ArchiveConfig) (*NoteArchive, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	archive, err := NewNoteArchiveWithPool(pool, cfg.NotesTable, cfg.CommentsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return archive, nil
}

// NewNoteArchiveWithPool constructs an archive from an existing pool.
func NewNoteArchiveWithPool(pool txPool, notesTable, commentsTable string) (*NoteArchive, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if notesTable == "" {
		notesTable = "xhs_notes"
	}
	if commentsTable == "" {
		commentsTable = "xhs_comments"
	}
	for _, table := range []string{notesTable, commentsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &NoteArchive{pool: pool, notesTable: notesTable, commentsTable: commentsTable}, nil
}

// Close releases the underlying pool resources.
func (a *NoteArchive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// EnsureSchema creates the archive tables when missing.
func (a *NoteArchive) EnsureSchema(ctx context.Context) error {
	notes := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id          TEXT NOT NULL,
	note_id         TEXT NOT NULL,
	query           TEXT NOT NULL,
	note_type       TEXT NOT NULL,
	note_url        TEXT NOT NULL,
	title           TEXT,
	description     TEXT,
	author_id       TEXT,
	author_nickname TEXT,
	tags            TEXT[] NOT NULL DEFAULT '{}',
	upload_time     TIMESTAMPTZ,
	ip_location     TEXT,
	liked_count     INTEGER NOT NULL DEFAULT 0,
	collected_count INTEGER NOT NULL DEFAULT 0,
	comment_count   INTEGER NOT NULL DEFAULT 0,
	share_count     INTEGER NOT NULL DEFAULT 0,
	media           JSONB NOT NULL DEFAULT '{}',
	archived_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, note_id)
)`, a.notesTable)
	comments := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id             TEXT NOT NULL,
	comment_id         TEXT NOT NULL,
	note_id            TEXT NOT NULL,
	content            TEXT NOT NULL,
	like_count         INTEGER NOT NULL DEFAULT 0,
	upload_time        TIMESTAMPTZ,
	ip_location        TEXT,
	commenter_id       TEXT,
	commenter_nickname TEXT,
	parent_comment_id  TEXT,
	root_comment_id    TEXT,
	archived_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, comment_id)
)`, a.commentsTable)
	for _, stmt := range []string{notes, comments} {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure archive schema: %w", err)
		}
	}
	return nil
}

// ArchiveNotes upserts notes in one transaction.
func (a *NoteArchive) ArchiveNotes(ctx context.Context, runID, query string, notes []crawler.NoteRecord) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(notes) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s (
	run_id, note_id, query, note_type, note_url, title, description,
	author_id, author_nickname, tags, upload_time, ip_location,
	liked_count, collected_count, comment_count, share_count, media
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
ON CONFLICT (run_id, note_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	tags = EXCLUDED.tags,
	liked_count = EXCLUDED.liked_count,
	collected_count = EXCLUDED.collected_count,
	comment_count = EXCLUDED.comment_count,
	share_count = EXCLUDED.share_count,
	media = EXCLUDED.media,
	archived_at = now()`, a.notesTable)

	return a.inTx(ctx, "archive notes", func(tx pgx.Tx) error {
		for _, note := range notes {
			media, err := json.Marshal(note.Media)
			if err != nil {
				return fmt.Errorf("marshal media of %s: %w", note.NoteID, err)
			}
			tags := note.Tags
			if tags == nil {
				tags = []string{}
			}
			_, err = tx.Exec(ctx, stmt,
				runID,
				note.NoteID,
				query,
				string(note.Type),
				note.URL,
				note.Title,
				note.Description,
				note.Author.UserID,
				note.Author.Nickname,
				tags,
				note.UploadTime,
				note.Location,
				note.Interactions.Liked,
				note.Interactions.Collected,
				note.Interactions.Commented,
				note.Interactions.Shared,
				media,
			)
			if err != nil {
				return fmt.Errorf("upsert note %s: %w", note.NoteID, err)
			}
		}
		return nil
	})
}

// ArchiveComments upserts comments in one transaction.
func (a *NoteArchive) ArchiveComments(ctx context.Context, runID string, comments []crawler.CommentRecord) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(comments) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s (
	run_id, comment_id, note_id, content, like_count, upload_time, ip_location,
	commenter_id, commenter_nickname, parent_comment_id, root_comment_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (run_id, comment_id) DO UPDATE SET
	content = EXCLUDED.content,
	like_count = EXCLUDED.like_count,
	archived_at = now()`, a.commentsTable)

	return a.inTx(ctx, "archive comments", func(tx pgx.Tx) error {
		for _, c := range comments {
			_, err := tx.Exec(ctx, stmt,
				runID,
				c.CommentID,
				c.NoteID,
				c.Content,
				c.LikeCount,
				c.UploadTime,
				c.Location,
				c.Commenter.UserID,
				c.Commenter.Nickname,
				c.ParentCommentID,
				c.RootCommentID,
			)
			if err != nil {
				return fmt.Errorf("upsert comment %s: %w", c.CommentID, err)
			}
		}
		return nil
	})
}

func (a *NoteArchive) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	if a == nil || a.pool == nil {
		return fmt.Errorf("note archive is not configured")
	}
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%s: %w (rollback: %v)", op, err, rbErr)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
