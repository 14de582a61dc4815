package lineage

import (
	"context"
	"fmt"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/lineage/internal/store"
)

// workItem holds one document and the batch its worker writes into.
type workItem struct {
	doc   document
	batch *store.BatchedStore

	result indexResult
	err    error
}

// indexParallel indexes documents in two phases:
//
//	Phase A (parallel): read, hash-check and parse on a bounded errgroup,
//	                    each document buffering its units in a BatchedStore.
//	Phase B (serial):   commit the batches to SQLite in document order.
//
// Per-document failures are collected; only cancellation stops the pool.
func (e *Engine) indexParallel(ctx context.Context, docs []document) ([]indexResult, error) {
	items := make([]*workItem, len(docs))
	for i, d := range docs {
		items[i] = &workItem{doc: d, batch: store.NewBatchedStore(e.store)}
	}

	workers := e.workers
	if workers < 1 {
		workers = goruntime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, max(len(items), 1)))
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item.result, item.err = e.indexDocument(gctx, item.batch, item.doc, false)
			if item.err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// ---- Phase B: serial commit ----
	results := make([]indexResult, 0, len(items))
	var errs []error
	for _, item := range items {
		results = append(results, item.result)
		if item.err != nil {
			e.logger.Warn("indexing failed, skipping", "path", item.doc.Path, "error", item.err)
			errs = append(errs, fmt.Errorf("extract %s: %w", item.doc.Path, item.err))
			continue
		}
		if item.batch.Len() == 0 {
			continue
		}
		if err := e.store.CommitBatch(item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.doc.Path, err))
		}
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return results, nil
}
