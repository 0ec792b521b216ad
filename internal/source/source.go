package source

import (
	"context"
	"errors"
	"time"
)

// MaxPageSize is the largest page the source protocol accepts.
const MaxPageSize = 100

// ErrSourceUnavailable is returned when a collection is missing or not readable.
var ErrSourceUnavailable = errors.New("source unavailable")

// Item is a single message read from a collection. Items are never mutated after fetch.
// Items order by Timestamp, then Seq.
type Item struct {
	ID        string
	Text      string
	Author    string
	Timestamp time.Time // millisecond precision, as reported by the source
	Seq       uint64    // source-assigned sequence, breaks timestamp ties
}

// TimestampSeconds is the item's ordering key truncated to whole seconds.
func (i Item) TimestampSeconds() int64 {
	return i.Timestamp.Unix()
}

// Cursor identifies the last item seen. The zero value means "no cursor".
type Cursor string

// Collection is a resolved, readable message collection.
type Collection struct {
	ID   string
	Name string
}

// Source is paginated read access to message collections.
type Source interface {
	// Resolve checks that a collection exists and can be read.
	Resolve(ctx context.Context, collectionID string) (Collection, error)
	// Page returns up to limit items strictly after the cursor, in no particular order.
	Page(ctx context.Context, collectionID string, after Cursor, limit int) ([]Item, error)
}

// Seeker is implemented by sources that can derive a cursor from a point in time.
type Seeker interface {
	CursorAt(t time.Time) Cursor
}
