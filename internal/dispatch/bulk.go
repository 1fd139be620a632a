package dispatch

import (
	"context"
	"sync"

	"github.com/getailigned/notification-service/internal/notification"
)

// Bulk dispatches each request independently through the engine with at
// most width concurrent dispatches. Requests are handed to workers in input
// order; completion order is unspecified and results correlate to inputs by
// index only. One item's failure never aborts or delays the others.
func (e *Engine) Bulk(ctx context.Context, reqs []*notification.Request, width int) *notification.BulkResult {
	if width <= 0 {
		width = 1
	}

	result := &notification.BulkResult{Items: make([]notification.BulkItem, len(reqs))}

	type job struct {
		index int
		req   *notification.Request
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				resp := e.Send(ctx, j.req)
				result.Items[j.index] = notification.BulkItem{
					Index:    j.index,
					Success:  resp.Status != notification.StatusFailed,
					Response: resp,
					Error:    resp.Error,
				}
			}
		}()
	}

	for i, req := range reqs {
		jobs <- job{index: i, req: req}
	}
	close(jobs)
	wg.Wait()

	result.Tally()
	return result
}
