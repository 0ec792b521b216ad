package source

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// FetchOptions controls a FetchAll run.
type FetchOptions struct {
	// Start is the cursor the first page is requested after. Empty starts from the source default.
	Start Cursor
	// Ceiling stops paging once the newest item of a page is later than it.
	Ceiling time.Time
	// PageSize is capped at MaxPageSize; zero means MaxPageSize.
	PageSize int
}

// FetchAll resolves the collection and pages forward from opts.Start until a page is
// empty or its newest item is past opts.Ceiling. Each page is sorted by timestamp and
// sequence (stable, so full ties keep arrival order) before it is appended.
func FetchAll(ctx context.Context, src Source, collectionID string, opts FetchOptions, logger *slog.Logger) (Collection, []Item, error) {
	coll, err := src.Resolve(ctx, collectionID)
	if err != nil {
		return Collection{}, nil, err
	}

	limit := opts.PageSize
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	var items []Item
	cursor := opts.Start
	pages := 0

	for {
		page, err := src.Page(ctx, collectionID, cursor, limit)
		if err != nil {
			return coll, nil, fmt.Errorf("fetch page %d of %s: %w", pages+1, collectionID, err)
		}
		if len(page) == 0 {
			break
		}
		pages++

		sorted := slices.Clone(page)
		slices.SortStableFunc(sorted, compareItems)
		items = append(items, sorted...)

		last := sorted[len(sorted)-1]
		logger.Debug("page fetched",
			"collection", collectionID,
			"page", pages,
			"items", len(sorted),
			"cursor", last.ID,
		)

		if last.Timestamp.After(opts.Ceiling) {
			break
		}
		next := Cursor(last.ID)
		if next == cursor {
			// Cursor did not advance; another request would return the same page.
			break
		}
		cursor = next
	}

	logger.Info("collection fetched",
		"collection", collectionID,
		"pages", pages,
		"items", len(items),
	)
	return coll, items, nil
}

func compareItems(a, b Item) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}
