package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/normalize"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// noteProgressCeiling is the progress reached once every note is processed.
// Comment retrieval does not advance progress; the final event jumps to 100.
const noteProgressCeiling = 50

func (o *Orchestrator) processNotes(ctx context.Context, st *runState, candidates []crawler.RawItem) error {
	total := min(st.req.Count, len(candidates))
	pacer := o.pacer(o.cfg.NotePacing, st.req, st.logger)
	st.run.Status = crawler.RunStatusProgress

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled after %d notes: %w", len(st.notes), err)
		}
		pacer.Wait(ctx, i)

		rec := o.resolveNote(ctx, st, candidates[i-1])
		if _, dup := st.seen[rec.NoteID]; dup {
			st.logger.Warn("duplicate note skipped", zap.String("note_id", rec.NoteID))
		} else {
			st.seen[rec.NoteID] = struct{}{}
			st.notes = append(st.notes, rec)
		}

		st.run.Advance(i * noteProgressCeiling / total)
		st.reporter.Report(ctx, st.run, fmt.Sprintf("processed %d/%d notes", i, total), o.data(st), nil)
	}
	return nil
}

// resolveNote normalizes a search item and, when enabled, enriches it with
// the detail card. Detail failures keep the search-derived record.
func (o *Orchestrator) resolveNote(ctx context.Context, st *runState, raw crawler.RawItem) crawler.NoteRecord {
	rec, err := o.notes.Note(raw)
	if err != nil {
		st.logger.Warn("note normalized with gaps", zap.Error(err))
	}
	if !o.cfg.FetchDetail || rec.NoteID == "" {
		return rec
	}
	detail, err := o.upstream.FetchDetail(ctx, rec.URL, st.req.Credential)
	if err != nil {
		st.logger.Warn("detail fetch failed, keeping search record",
			zap.String("note_id", rec.NoteID),
			zap.Error(err),
		)
		return rec
	}
	full, err := o.notes.Detail(detail)
	if err != nil {
		st.logger.Debug("detail normalized with gaps", zap.String("note_id", rec.NoteID), zap.Error(err))
	}
	return normalize.Merge(rec, full)
}

// collectComments fetches comments note by note. Only cancellation aborts
// the phase; other fetch failures are collected per note.
func (o *Orchestrator) collectComments(ctx context.Context, st *runState) error {
	pacer := o.pacer(o.cfg.CommentPacing, st.req, st.logger)
	st.comments = make(map[string]progress.CommentBundle, len(st.notes))

	for i, note := range st.notes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled after comments for %d notes: %w", i, err)
		}
		if note.NoteID == "" {
			st.logger.Debug("note without id has no comments to fetch")
			continue
		}
		pacer.Pause(ctx)
		raws, err := o.upstream.FetchComments(ctx, note.NoteID, note.XsecToken, st.req.Credential)
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			return fmt.Errorf("run canceled after comments for %d notes: %w", i, ctxErr)
		}
		if err != nil {
			st.logger.Warn("comment fetch failed", zap.String("note_id", note.NoteID), zap.Error(err))
			st.errs.AddError(crawler.PhaseComment, note.NoteID, err)
			st.comments[note.NoteID] = progress.CommentBundle{
				Success:  false,
				Comments: []crawler.CommentRecord{},
				Error:    err.Error(),
			}
			continue
		}
		recs := o.comments.Comments(raws, note.NoteID)
		st.comments[note.NoteID] = progress.CommentBundle{
			Success:  true,
			Count:    len(recs),
			Comments: recs,
		}
		st.logger.Debug("comments collected", zap.String("note_id", note.NoteID), zap.Int("count", len(recs)))
	}
	return nil
}

func (o *Orchestrator) data(st *runState) progress.EventData {
	d := progress.EventData{
		TotalFound:    st.totalFound,
		ReturnedCount: len(st.notes),
		Notes:         slices.Clone(st.notes),
	}
	if st.comments != nil {
		d.Comments = maps.Clone(st.comments)
		d.CommentStats = commentStats(st.comments)
	}
	return d
}

func commentStats(bundles map[string]progress.CommentBundle) *progress.CommentStats {
	stats := &progress.CommentStats{}
	for _, b := range bundles {
		if !b.Success {
			stats.FailedComments++
			continue
		}
		if b.Count > 0 {
			stats.TotalNotesWithComments++
		}
		stats.TotalCommentsCount += b.Count
	}
	return stats
}

func (o *Orchestrator) finish(ctx context.Context, st *runState, status crawler.RunStatus, message string) Result {
	st.run.Advance(100)
	st.run.Finish(status, o.clock.Now())
	evt := st.reporter.Report(ctx, st.run, message, o.data(st), st.errs.Messages())
	st.logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("notes", len(st.notes)),
		zap.Int("errors", st.errs.Len()),
		zap.Float64("elapsed_seconds", st.run.Elapsed(o.clock.Now()).Seconds()),
	)
	return Result{
		Success:  true,
		RunID:    st.run.RunID,
		Status:   status,
		Event:    evt,
		Notes:    slices.Clone(st.notes),
		Comments: st.comments,
		Errors:   st.errs.Entries(),
	}
}

func (o *Orchestrator) fail(ctx context.Context, st *runState, err error) Result {
	st.run.Finish(crawler.RunStatusFailed, o.clock.Now())
	evt := st.reporter.Report(ctx, st.run, "crawl failed: "+err.Error(), o.data(st), st.errs.Messages())
	st.logger.Error("run failed", zap.Error(err))
	return Result{
		Success:  false,
		RunID:    st.run.RunID,
		Status:   crawler.RunStatusFailed,
		Event:    evt,
		Notes:    slices.Clone(st.notes),
		Comments: st.comments,
		Errors:   st.errs.Entries(),
		Err:      err,
	}
}
