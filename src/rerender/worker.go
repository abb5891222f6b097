package rerender

import (
	"context"
	"errors"
	"sync"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/jobs"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/persistentvars"
	"git.cdm.community/cdm/cdm/src/utils"
	"golang.org/x/sync/errgroup"
)

/*
Starts a job that runs h once for every event received on events. Passes
for one handler never overlap, since a single goroutine serves them. The job
finishes when it is canceled or events is closed.

conn must be safe for concurrent use if other workers share it.
*/
func StartWorker(conn db.ConnOrTx, h Handler, events <-chan EngineChanged) *jobs.Job {
	job := jobs.New("rerender " + h.Kind)
	go func() {
		defer job.Finish()
		for {
			select {
			case <-job.Canceled():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				job.Logger.Info().Str("version", ev.Version).Msg("re-rendering")
				stats, err := runHandler(job.Ctx, conn, h)
				if err != nil && job.Ctx.Err() == nil {
					job.Logger.Error().Err(err).Msg("re-render pass failed")
					continue
				}
				job.Logger.Info().
					Int("rows", stats.Rows).
					Int("failed", stats.Failed).
					Msg("re-render pass finished")
			}
		}
	}()
	return job
}

// One worker per handler, each subscribed to b.
func StartWorkers(conn db.ConnOrTx, b *Broadcaster, handlers []Handler) jobs.Jobs {
	var result jobs.Jobs
	for _, h := range handlers {
		result = append(result, StartWorker(conn, h, b.Subscribe()))
	}
	return result
}

func runHandler(ctx context.Context, conn db.ConnOrTx, h Handler) (stats Stats, err error) {
	defer utils.RecoverPanicAsError(&err)
	return h.Rerender(ctx, conn)
}

/*
Runs the handlers of the given kinds (all of them if kinds is empty) in
parallel and waits for them. This is for the command line; the server uses
workers instead. conn must be safe for concurrent use, such as a pool.
*/
func RunAll(ctx context.Context, conn db.ConnOrTx, handlers []Handler, kinds []string) (map[string]Stats, error) {
	selected, err := findHandlers(handlers, kinds)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]Stats, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range selected {
		h := h
		g.Go(func() error {
			logger := logging.ExtractLogger(gctx).With().Str("kind", h.Kind).Logger()
			stats, err := runHandler(logging.AttachLoggerToContext(&logger, gctx), conn, h)

			mu.Lock()
			results[h.Kind] = stats
			mu.Unlock()

			if err != nil {
				return oops.New(err, "failed to re-render %s", h.Kind)
			}
			return nil
		})
	}
	err = g.Wait()
	return results, err
}

/*
Compares the engine version stored in the database with the running one. If
they differ (or nothing is stored yet), it publishes EngineChanged and
records the running version. Reports whether an event was published.
*/
func CheckEngineVersion(ctx context.Context, conn db.ConnOrTx, b *Broadcaster) (bool, error) {
	stored, err := persistentvars.Fetch[string](ctx, conn, persistentvars.RenderEngineVersion)
	if err != nil && !errors.Is(err, db.NotFound) {
		return false, oops.New(err, "failed to fetch stored render engine version")
	}
	if stored != nil && *stored == parsing.EngineVersion {
		return false, nil
	}

	previous := ""
	if stored != nil {
		previous = *stored
	}
	logging.ExtractLogger(ctx).Info().
		Str("previous", previous).
		Str("current", parsing.EngineVersion).
		Msg("render engine changed")

	if err := persistentvars.Store(ctx, conn, persistentvars.RenderEngineVersion, parsing.EngineVersion); err != nil {
		return false, err
	}
	b.Publish(EngineChanged{Version: parsing.EngineVersion})
	return true, nil
}
