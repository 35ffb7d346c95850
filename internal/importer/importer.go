// Package importer runs POS export files through the pipeline: sniff,
// extract, map, coerce, collision check and the dual-table upsert.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"posimport/internal/collision"
	"posimport/internal/extract"
	"posimport/internal/extracthtml"
	"posimport/internal/importerr"
	"posimport/internal/keylock"
	"posimport/internal/mapping"
	"posimport/internal/metrics"
	"posimport/internal/pos"
	"posimport/internal/schema"
	"posimport/internal/sniff"
	"posimport/internal/storage"
)

const collisionSuggestion = "choose a unique key strategy (e.g. include year) or rerun with -allow-id-collisions to overwrite"

// Options tunes a run.
type Options struct {
	// Workers is how many files are processed at once. Values below 1 mean 1.
	Workers int

	// FileTimeout bounds the work on a single file. Zero disables it.
	FileTimeout time.Duration

	// AllowCollisions overwrites stored sales whose date differs from the
	// incoming row instead of rejecting the file.
	AllowCollisions bool

	// CollisionLimit caps how many collisions a report lists.
	CollisionLimit int

	Logger logrus.FieldLogger
}

// FileResult is the outcome of one file.
type FileResult struct {
	Path       string
	SourceFile string
	ImportID   string
	Format     sniff.Format

	// Rows is how many distinct sales were written to each table.
	Rows             int
	SkippedBlankKeys int
	Duplicates       int

	// Unmapped lists headers kept in the raw archive only.
	Unmapped []string

	// Collisions is set whenever stored sales had a different date, whether
	// or not they were overwritten.
	Collisions *collision.Report

	Duration time.Duration
	Err      error
}

// OK reports whether the file was imported.
func (r FileResult) OK() bool { return r.Err == nil }

// Status is the metrics label for the outcome: "ok", the failure kind, or
// "error" for unclassified failures.
func (r FileResult) Status() string {
	if r.Err == nil {
		return "ok"
	}
	if k, ok := importerr.KindOf(r.Err); ok {
		return string(k)
	}
	return "error"
}

// Summary aggregates a run. Results keep the input order.
type Summary struct {
	Results  []FileResult
	Imported int
	Failed   int
	Rows     int
}

// HasFailures reports whether any file failed.
func (s Summary) HasFailures() bool { return s.Failed > 0 }

func summarize(results []FileResult) Summary {
	s := Summary{Results: results}
	for _, r := range results {
		if r.OK() {
			s.Imported++
			s.Rows += r.Rows
		} else {
			s.Failed++
		}
	}
	return s
}

// Importer is safe for concurrent use; Run drives it with a bounded pool.
type Importer struct {
	schema *schema.Schema
	sink   storage.Sink
	opts   Options
	log    logrus.FieldLogger
	locks  *keylock.Set
	reader *extract.Reader

	// Hooks for tests.
	detect func(ctx context.Context, path string) (sniff.Result, error)
	newID  func() string
}

// New returns an Importer writing to sink. HTML exports are parsed with
// goquery first and the tokenizer as the fallback.
func New(s *schema.Schema, sink storage.Sink, opts Options) *Importer {
	if s == nil {
		s = schema.Default()
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Importer{
		schema: s,
		sink:   sink,
		opts:   opts,
		log:    log,
		locks:  keylock.New(),
		reader: extract.NewReader(extract.FirstSuccess(
			extracthtml.GoqueryStrategy{},
			extracthtml.TokenizerStrategy{},
		)),
		detect: sniff.Detect,
		newID:  func() string { return uuid.NewString() },
	}
}

// Run imports paths with up to Options.Workers files in flight. A failing
// file never stops the run; its error is in its FileResult. The returned
// error is only ctx's, and files not started before cancellation carry it.
func (im *Importer) Run(ctx context.Context, paths []string) (Summary, error) {
	results := make([]FileResult, len(paths))
	started := make([]bool, len(paths))

	var g errgroup.Group
	g.SetLimit(max(1, im.opts.Workers))
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			results[i] = im.Import(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range started {
		if !ok {
			results[i] = FileResult{Path: paths[i], SourceFile: filepath.Base(paths[i]), Err: ctx.Err()}
		}
	}
	return summarize(results), ctx.Err()
}

// Import runs a single file through the pipeline in one transaction.
func (im *Importer) Import(ctx context.Context, path string) (res FileResult) {
	start := time.Now()
	res = FileResult{
		Path:       path,
		SourceFile: filepath.Base(path),
		ImportID:   im.newID(),
	}
	log := im.log.WithFields(logrus.Fields{"file": res.SourceFile, "import_id": res.ImportID})

	if im.opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.opts.FileTimeout)
		defer cancel()
	}

	log.Info("importing")
	res.Err = im.importFile(ctx, log, &res)
	res.Duration = time.Since(start)
	metrics.RecordFile(res.Status())

	if res.Err != nil {
		log.WithError(res.Err).WithField("status", res.Status()).Error("import failed")
		return res
	}
	log.WithFields(logrus.Fields{
		"format":  res.Format.String(),
		"rows":    res.Rows,
		"skipped": res.SkippedBlankKeys,
		"dups":    res.Duplicates,
		"elapsed": res.Duration.Round(time.Millisecond).String(),
	}).Info("imported")
	return res
}

func (im *Importer) importFile(ctx context.Context, log logrus.FieldLogger, res *FileResult) error {
	path := res.Path

	var det sniff.Result
	err := step("sniff", func() (err error) {
		det, err = im.detect(ctx, path)
		return err
	})
	if err != nil {
		return err
	}
	res.Format = det.Format
	log = log.WithField("format", det.Format.String())

	var g *extract.Grid
	err = step("extract", func() (err error) {
		g, err = im.reader.Read(ctx, det, im.schema.ExpectedHeaders())
		return err
	})
	if err != nil {
		return err
	}

	var keyed, recs []pos.Record
	err = step("map", func() error {
		p, err := mapping.Map(im.schema, g)
		if err != nil {
			return withFile(err, path)
		}
		res.Unmapped = p.Unmapped()
		if len(res.Unmapped) > 0 {
			log.WithField("headers", res.Unmapped).Debug("headers kept in raw archive only")
		}

		keyed, res.SkippedBlankKeys = buildRecords(im.schema, p, g, res.SourceFile)
		recs, res.Duplicates = storage.LastByKey(keyed, func(r pos.Record) string { return r.Clean.SaleID })
		return nil
	})
	if err != nil {
		return err
	}

	if res.SkippedBlankKeys > 0 {
		log.WithField("rows", res.SkippedBlankKeys).Warn("skipped rows without a sale id")
	}
	if res.Duplicates > 0 {
		log.WithField("rows", res.Duplicates).Warn("sale id repeated in file; later rows win")
	}
	if len(recs) == 0 {
		log.Warn("no rows to write")
		return nil
	}

	return step("write", func() error {
		return im.write(ctx, log, res, recs, cleanRows(keyed))
	})
}

// write holds the in-process key locks before opening the transaction so a
// single-connection sink is never held by a worker waiting on a key.
//
// recs are the rows to store, one per key. checked holds every keyed row of
// the file, superseded duplicates included, and is what the stored dates are
// compared against.
func (im *Importer) write(ctx context.Context, log logrus.FieldLogger, res *FileResult, recs []pos.Record, checked []pos.CleanRow) error {
	path := res.Path
	raw, clean := rawRows(recs), cleanRows(recs)
	keys := collision.Keys(clean)

	unlock, err := im.locks.Lock(ctx, keys)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := im.sink.Begin(ctx)
	if err != nil {
		return sinkErr(err, "begin transaction", path)
	}
	defer func() { _ = b.Rollback(context.WithoutCancel(ctx)) }()

	if err := b.LockKeys(ctx, keys); err != nil {
		return sinkErr(err, "lock keys", path)
	}
	existing, err := b.SaleDates(ctx, keys)
	if err != nil {
		return sinkErr(err, "look up stored sale dates", path)
	}

	dateIdx, _ := im.schema.FieldIndex(schema.DateField)
	if cs := collision.Detect(checked, dateIdx, existing); len(cs) > 0 {
		rep := collision.NewReport(cs, im.opts.CollisionLimit)
		res.Collisions = &rep
		if !im.opts.AllowCollisions {
			return importerr.Newf(importerr.KeyCollision, "%d sale_id collisions with a different sale_date", len(cs)).
				WithFile(path).
				WithDetail(rep).
				WithSuggestion(collisionSuggestion)
		}
		log.WithField("collisions", len(cs)).Warn("overwriting sales whose sale_date changed")
	}

	nRaw, err := b.UpsertRaw(ctx, raw)
	if err != nil {
		return sinkErr(err, "upsert raw rows", path)
	}
	nClean, err := b.UpsertClean(ctx, clean)
	if err != nil {
		return sinkErr(err, "upsert clean rows", path)
	}
	if err := b.Commit(ctx); err != nil {
		return sinkErr(err, "commit", path)
	}

	res.Rows = len(recs)
	metrics.RecordRows("raw", len(raw))
	metrics.RecordRows("clean", len(clean))
	log.WithFields(logrus.Fields{"raw_affected": nRaw, "clean_affected": nClean}).Debug("committed")
	return nil
}

func step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(name, time.Since(start), err)
	return err
}

func sinkErr(err error, msg, path string) error {
	return importerr.Wrap(err, importerr.SinkFailure, msg).WithFile(path)
}

func withFile(err error, path string) error {
	if ie, ok := importerr.As(err); ok && ie.File == "" {
		ie.File = path
	}
	return err
}

// CollisionReport returns the report carried by a rejected file's error.
func CollisionReport(err error) (collision.Report, bool) {
	ie, ok := importerr.As(err)
	if !ok || ie.Kind != importerr.KeyCollision {
		return collision.Report{}, false
	}
	rep, ok := ie.Detail.(collision.Report)
	return rep, ok
}

// String renders a one-line outcome for operators.
func (r FileResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: FAILED (%s)", r.SourceFile, r.Status())
	}
	return fmt.Sprintf("%s: upserted %d rows (clean) + %d rows (raw)", r.SourceFile, r.Rows, r.Rows)
}
