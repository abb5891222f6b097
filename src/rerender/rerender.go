/*
Package rerender regenerates stored HTML and text after the markup engine
changes.

Every table that stores rendered markup registers a Handler. When the engine
version recorded in the database differs from parsing.EngineVersion, an
EngineChanged event is published on a Broadcaster and each handler's worker
rebuilds its rows. Handlers write only derived columns, so modification dates
and revision history are left alone, and running one twice is harmless.
*/
package rerender

import (
	"context"
	"sync"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type EngineChanged struct {
	Version string
}

type Stats struct {
	Rows   int
	Failed int
}

type Func func(ctx context.Context, conn db.ConnOrTx) (Stats, error)

type Handler struct {
	// What the handler rebuilds, like "article" or "ticket". Used in logs,
	// metrics and on the command line.
	Kind     string
	Rerender Func
}

var ErrUnknownKind = oops.NewCoded(oops.KindValidation, "unknown_rerender_kind", "no re-render handler of that kind")

var (
	rowsRerendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdm_rerendered_rows_total",
		Help: "Rows whose derived markup fields were rebuilt.",
	}, []string{"kind"})
	rowsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdm_rerender_failures_total",
		Help: "Rows that could not be re-rendered.",
	}, []string{"kind"})
)

const batchSize = 200

/*
Rows walks every row of table in id order, calling update on each. A row
whose update fails (or panics) is logged and counted, and the walk moves on
to the next row. Only a failure to fetch rows stops the walk.

The rows are fetched in batches, so update may write through the same conn.
*/
func Rows[T any](
	ctx context.Context,
	conn db.ConnOrTx,
	kind string,
	table string,
	idOf func(row *T) int,
	update func(ctx context.Context, conn db.ConnOrTx, row *T) error,
) (Stats, error) {
	logger := logging.ExtractLogger(ctx).With().Str("kind", kind).Logger()

	var stats Stats
	lastID := 0
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rows, err := db.Query[T](ctx, conn,
			`
			---- Fetch rows to re-render
			SELECT $columns
			FROM `+table+`
			WHERE id > $1
			ORDER BY id
			LIMIT $2
			`,
			lastID,
			batchSize,
		)
		if err != nil {
			return stats, oops.New(err, "failed to fetch %s rows to re-render", kind)
		}

		for _, row := range rows {
			lastID = idOf(row)
			err := func() (err error) {
				defer utils.RecoverPanicAsError(&err)
				return update(ctx, conn, row)
			}()
			if err != nil {
				logger.Error().Err(err).Int("id", lastID).Msg("failed to re-render row")
				rowsFailed.WithLabelValues(kind).Inc()
				stats.Failed++
				continue
			}
			rowsRerendered.WithLabelValues(kind).Inc()
			stats.Rows++
		}

		if len(rows) < batchSize {
			return stats, nil
		}
	}
}

// Broadcaster fans one EngineChanged out to every subscriber. Each
// subscription buffers a single event; publishing while a subscriber still
// has one pending is a no-op for that subscriber, since the pending event
// will already cause a full pass.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []chan EngineChanged
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) Subscribe() <-chan EngineChanged {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := make(chan EngineChanged, 1)
	if b.closed {
		close(c)
		return c
	}
	b.subs = append(b.subs, c)
	return c
}

func (b *Broadcaster) Publish(ev EngineChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, c := range b.subs {
		select {
		case c <- ev:
		default:
		}
	}
}

// Close ends every subscription. Workers finish once their channel closes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, c := range b.subs {
		close(c)
	}
	b.subs = nil
}

func findHandlers(handlers []Handler, kinds []string) ([]Handler, error) {
	if len(kinds) == 0 {
		return handlers, nil
	}
	byKind := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind] = h
	}
	var result []Handler
	for _, kind := range kinds {
		h, ok := byKind[kind]
		if !ok {
			return nil, oops.NewCoded(oops.KindValidation, ErrUnknownKind.Code, kind)
		}
		result = append(result, h)
	}
	return result, nil
}

func Kinds(handlers []Handler) []string {
	kinds := make([]string, len(handlers))
	for i, h := range handlers {
		kinds[i] = h.Kind
	}
	return kinds
}
