// Package pagination implements keyset (created_at, id) cursors for list
// endpoints. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params are the raw ?limit= and ?cursor= values.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the sort key of the last row on the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row so Trim can tell whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor returns nil for a blank value (first page).
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	ns, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp", ErrInvalidCursor)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id", ErrInvalidCursor)
	}
	return &Cursor{CreatedAt: time.Unix(0, ns).UTC(), ID: parsed}, nil
}

// Trim cuts a LimitWithBuffer result back to the page size and reports
// whether more rows remain.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, false
	}
	return rows[:size], true
}

// Order is the direction a keyset walks.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// Keyset applies cursor, ordering and buffered limit to a query on a table
// with created_at and id columns.
func Keyset(query *gorm.DB, params Params, order Order) (*gorm.DB, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	dir, cmp := "DESC", "<"
	if order == OldestFirst {
		dir, cmp = "ASC", ">"
	}
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("(created_at %[1]s ?) OR (created_at = ? AND id %[1]s ?)", cmp),
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	return query.
		Order("created_at " + dir).
		Order("id " + dir).
		Limit(LimitWithBuffer(params.Limit)), nil
}

// Page trims rows fetched through Keyset and builds the next cursor from the
// last kept row.
func Page[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	page, more := Trim(rows, limit)
	if !more || len(page) == 0 {
		return page, ""
	}
	return page, EncodeCursor(key(page[len(page)-1]))
}
