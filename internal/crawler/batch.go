package crawler

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// runLevel crawls the links of one depth level in batches of ChunkSize.
// Links inside a batch run concurrently, each with its position in the
// batch as pacing index, and the next batch starts once the current one
// has finished. It returns the outbound links of the whole level in
// discovery order, so the caller starts depth+1 only after every visit at
// depth has completed.
func (r *run) runLevel(ctx context.Context, links []string, depth int) []string {
	var next []string
	seen := make(map[string]bool)

	for batch := 0; len(links) > 0; batch++ {
		n := min(r.opts.ChunkSize, len(links))
		chunk := links[:n]
		links = links[n:]

		r.log(slog.LevelDebug, "batch", "running batch",
			"depth", depth,
			"batch", batch,
			"size", len(chunk),
			"remaining", len(links),
		)

		// Each goroutine owns one slot, so discovery order follows batch
		// position rather than completion order.
		found := make([][]string, len(chunk))

		// Visit failures are recorded per URL, so no goroutine returns an error.
		var g errgroup.Group
		for i, link := range chunk {
			g.Go(func() error {
				found[i] = r.crawl(ctx, link, i, depth)
				return nil
			})
		}
		_ = g.Wait()

		for _, pageLinks := range found {
			for _, link := range pageLinks {
				if seen[link] {
					continue
				}
				seen[link] = true
				next = append(next, link)
			}
		}
	}
	return next
}
