package source

import "context"

// Item is one input file of a pipeline stage.
type Item struct {
	Book string // File name up to the first "." after the adapter's prefix
	Path string // Local file path
	Size int64
}

// Source defines the interface for document sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items ordered by book.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}

// FetchAll drains src with the given page size.
func FetchAll(ctx context.Context, src Source, pageSize int) ([]Item, error) {
	var all []Item
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, next, err := src.FetchBatch(ctx, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
