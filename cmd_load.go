package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
)

const loadLockTimeout = 5 * time.Second

type loadOptions struct {
	freshen     bool
	prune       bool
	forceRescan bool
	appendTunes bool
	workers     int
}

// LoadCmd returns the load command.
func LoadCmd() *Command {
	var opts loadOptions
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.BoolVar(&opts.freshen, "freshen", false, "reload only files changed since the last load")
	fs.BoolVar(&opts.prune, "prune", false, "delete tunes whose source file no longer exists")
	fs.BoolVar(&opts.forceRescan, "force-rescan", false, "empty the database and load everything again")
	fs.BoolVar(&opts.appendTunes, "append", false, "load into a database that already holds tunes")
	fs.IntVarP(&opts.workers, "workers", "w", 0, "files parsed in parallel (default from config)")

	return &Command{
		Flags: fs,
		Usage: "load [flags]",
		Short: "Load the tune collections under the root",
		Long: `Read every .abc file in the numbered collection folders under the root
and store each tune. A database that already holds tunes is only loaded into
with --append, --freshen or --force-rescan.`,
		Exec: func(ctx context.Context, a *app, _ []string) error {
			return execLoad(ctx, a, opts)
		},
	}
}

func execLoad(ctx context.Context, a *app, opts loadOptions) error {
	lock, err := acquireLoadLock(a.dbPath(), loadLockTimeout)
	if err != nil {
		return err
	}
	defer lock.release()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	if opts.forceRescan {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing store: %w", err)
		}
		a.log.Info("store cleared")
	}

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 && !opts.appendTunes && !opts.freshen && !opts.forceRescan {
		if opts.prune {
			return prune(ctx, a, store)
		}
		return fmt.Errorf("%w (%s tunes); use --append, --freshen or --force-rescan", errStoreNotEmpty, commatize(count))
	}

	workers := a.cfg.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}

	p := &Pipeline{
		Loader:  NewLoader(store, a.log, time.Duration(a.cfg.InsertTimeout)),
		Log:     a.log,
		Out:     a.out,
		Workers: workers,
	}
	if opts.freshen {
		if err := freshen(ctx, a, store, p); err != nil {
			return err
		}
	}

	root := truePath(a.cfg.Root)
	started := time.Now().UTC()
	stats, err := p.Run(ctx, root)
	if err != nil {
		return err
	}

	summary := RunSummary{
		RunID:          uuid.NewString(),
		Root:           root,
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
		FilesTotal:     stats.FilesTotal,
		FilesProcessed: stats.FilesProcessed,
		FilesEmpty:     stats.FilesEmpty,
		FilesFailed:    stats.FilesFailed,
		TunesLoaded:    stats.TunesLoaded,
	}
	// The run record must land even if the load was interrupted.
	if err := store.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
		a.log.Warn("recording run", "run_id", summary.RunID, "err", err)
	} else {
		a.log.Debug("run recorded", "run_id", summary.RunID)
	}

	if opts.prune {
		if err := prune(ctx, a, store); err != nil {
			return err
		}
	}

	if stats.Interrupted {
		return fmt.Errorf("load interrupted: %w", context.Cause(ctx))
	}
	return nil
}

// freshen makes p skip files untouched since the last run and drop the
// old tunes of every file it does load.
func freshen(ctx context.Context, a *app, store Datastore, p *Pipeline) error {
	last, err := store.LastRun(ctx)
	switch {
	case isNotFound(err):
		a.log.Info("no previous run, loading every file")
	case err != nil:
		return err
	default:
		since := last.StartedAt
		a.log.Info("freshening", "since", since.Format(time.RFC3339))
		p.Skip = func(src SourceFile) bool {
			info, err := os.Stat(src.Path)
			if err != nil {
				return false
			}
			return !info.ModTime().After(since)
		}
	}

	p.Reset = func(ctx context.Context, src SourceFile) error {
		n, err := store.DeleteFile(ctx, src.Path)
		if err != nil {
			return fmt.Errorf("removing old tunes: %w", err)
		}
		if n > 0 {
			a.log.Debug("replaced old tunes", "path", src.Path, "removed", n)
		}
		return nil
	}
	return nil
}

func prune(ctx context.Context, a *app, store Datastore) error {
	removed, err := store.RemoveStaleEntries(ctx)
	if err != nil {
		return fmt.Errorf("pruning: %w", err)
	}
	fmt.Fprintf(a.out, "Pruner: Removed %d stale tunes.\n", removed)
	return nil
}
