package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"posimport/internal/config"
	"posimport/internal/importer"
	"posimport/internal/importerr"
	"posimport/internal/schema"
	"posimport/internal/source"
	"posimport/internal/storage"
)

// importRunner scans the incoming folder, imports every export and archives
// the ones that succeeded.
type importRunner struct {
	log logrus.FieldLogger
}

func (r *importRunner) Run(ctx context.Context, cfg config.Config, out io.Writer) error {
	s, err := schema.Load(cfg.Aliases.File)
	if err != nil {
		return fmt.Errorf("aliases: %w", err)
	}

	if err := source.EnsureDirs(cfg.Source.Incoming, cfg.Source.Processed); err != nil {
		return err
	}
	files, err := source.Scan(source.Options{
		Incoming:         cfg.Source.Incoming,
		Processed:        cfg.Source.Processed,
		IncludeProcessed: cfg.Source.IncludeProcessed,
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		where := cfg.Source.Incoming
		if cfg.Source.IncludeProcessed {
			where += " or " + cfg.Source.Processed
		}
		fmt.Fprintf(out, "No XLSX files in %s\n", where)
		return nil
	}

	sink, err := storage.New(ctx, storage.Config{
		Kind:       cfg.Storage.Kind,
		DSN:        cfg.Storage.DSN,
		RawTable:   cfg.Storage.RawTable,
		CleanTable: cfg.Storage.CleanTable,
		Schema:     s,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer sink.Close()

	if cfg.Storage.AutoCreateTable {
		if err := sink.EnsureTables(ctx); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}

	im := importer.New(s, sink, importer.Options{
		Workers:         cfg.Import.Workers,
		FileTimeout:     cfg.Import.FileTimeout.Std(),
		AllowCollisions: cfg.Import.AllowCollisions,
		CollisionLimit:  cfg.Import.CollisionLimit,
		Logger:          r.log.WithField("job", cfg.Job),
	})
	sum, runErr := im.Run(ctx, files)

	archiveFailures := 0
	for _, res := range sum.Results {
		writeResult(out, res)
		if !res.OK() {
			continue
		}
		if cfg.Source.NoMove {
			fmt.Fprintln(out, "Skipped moving file (-no-move).")
			continue
		}
		dest, moved, err := source.Archive(res.Path, cfg.Source.Processed)
		switch {
		case err != nil:
			archiveFailures++
			fmt.Fprintf(out, "Could not move to processed: %v\n", err)
		case moved:
			fmt.Fprintf(out, "Moved to processed: %s\n", dest)
		default:
			fmt.Fprintln(out, "File already in processed folder.")
		}
	}

	fmt.Fprintf(out, "\nDone: %d imported, %d failed, %d rows.\n", sum.Imported, sum.Failed, sum.Rows)

	switch {
	case runErr != nil:
		return runErr
	case sum.HasFailures():
		return fmt.Errorf("%d of %d files failed", sum.Failed, len(sum.Results))
	case archiveFailures > 0:
		return fmt.Errorf("%d imported files could not be moved", archiveFailures)
	}
	return nil
}

func writeResult(out io.Writer, res importer.FileResult) {
	fmt.Fprintf(out, "\n=== Importing %s ===\n", res.SourceFile)

	if res.Err != nil {
		if rep, ok := importer.CollisionReport(res.Err); ok {
			fmt.Fprintln(out, "Detected sale_id collisions with a different sale_date. This usually means Sales# is not globally unique.")
			rep.Write(out)
		} else {
			fmt.Fprintf(out, "FAILED: %v\n", res.Err)
		}
		if hint := importerr.SuggestionOf(res.Err); hint != "" {
			fmt.Fprintf(out, "Fix: %s.\n", hint)
		}
		return
	}

	if res.SkippedBlankKeys > 0 {
		fmt.Fprintf(out, "Skipped %d rows without a sale id.\n", res.SkippedBlankKeys)
	}
	if res.Duplicates > 0 {
		fmt.Fprintf(out, "Collapsed %d repeated sale ids (last row wins).\n", res.Duplicates)
	}
	if res.Collisions != nil {
		fmt.Fprintf(out, "Overwrote %d sales with a different sale_date:\n", res.Collisions.Total)
		res.Collisions.Write(out)
	}
	fmt.Fprintf(out, "Upserted: %d rows (clean) + %d rows (raw)\n", res.Rows, res.Rows)
}
