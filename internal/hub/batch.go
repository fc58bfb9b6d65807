package hub

import (
	"context"
	"sync"

	"translator/internal/artifact"
	"translator/pkg/models"
)

// DefaultBatchWorkers is the number of documents translated concurrently.
const DefaultBatchWorkers = 4

// Batch item outcomes
const (
	BatchSucceeded = "success"
	BatchFailed    = "error"
)

// BatchItem is the outcome of one document of a batch.
type BatchItem struct {
	Index    int
	Document *artifact.Artifact
	Job      *models.TranslationJob
	Result   *models.TranslationResult
	Err      error
	Status   string
}

// TranslateBatch runs StartJob and AwaitJob for every document with a pool
// of workers. Results keep the order of docs. onDone, when set, is called once
// per finished document from the worker goroutines, one call at a time.
func (h *Hub) TranslateBatch(ctx context.Context, docs []*artifact.Artifact, sourceLang, targetLang string, workers int, onDone func(BatchItem)) []BatchItem {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	indexes := make(chan int, len(docs))
	results := make([]BatchItem, len(docs))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for i := range indexes {
				h.log.Debug().
					Int("worker", workerID).
					Str("file", docs[i].Name).
					Int("index", i+1).
					Msg("Worker translating document")

				item := h.translateOne(ctx, docs[i], sourceLang, targetLang)
				item.Index = i
				results[i] = item

				if onDone != nil {
					mu.Lock()
					onDone(item)
					mu.Unlock()
				}
			}
		}(w)
	}

	for i := range docs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Status == BatchSucceeded {
			succeeded++
		}
	}
	h.log.Info().
		Int("total", len(docs)).
		Int("succeeded", succeeded).
		Int("failed", len(docs)-succeeded).
		Msg("Batch translation completed")

	return results
}

func (h *Hub) translateOne(ctx context.Context, doc *artifact.Artifact, sourceLang, targetLang string) BatchItem {
	item := BatchItem{Document: doc, Status: BatchFailed}

	job, err := h.StartJob(ctx, doc, sourceLang, targetLang)
	if err != nil {
		item.Err = err
		return item
	}
	item.Job = job

	result, err := h.AwaitJob(ctx, job, nil)
	if err != nil {
		item.Err = err
		return item
	}
	item.Result = result
	item.Status = BatchSucceeded
	return item
}
