package preset

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// FileVersion is the collection format version written by this package.
const FileVersion = 1

// Formula holds the expression text of a preset.
type Formula struct {
	Expr string `json:"expr"`
}

// Item is one stored preset.
type Item struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Formula   Formula `json:"formula"`
	CreatedAt int64   `json:"createdAt"`
}

// File is the exported form of a collection.
type File struct {
	Version int    `json:"version"`
	Items   []Item `json:"items"`
}

// Store is a preset collection.
type Store interface {
	// Load returns all items in insertion order, seeding the defaults when
	// the collection does not exist yet.
	Load(ctx context.Context) ([]Item, error)

	// Save appends a new item and returns it.
	Save(ctx context.Context, name, expr string) (Item, error)

	// Delete removes the item with the given ID.
	Delete(ctx context.Context, id string) error

	// Export returns the whole collection as indented JSON.
	Export(ctx context.Context) ([]byte, error)

	// Import merges an exported collection into this one and returns the
	// merged items.
	Import(ctx context.Context, data []byte) ([]Item, error)

	Close() error
}

// IDGenerator produces item IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 item IDs.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// defaultPresets are seeded into an empty collection.
var defaultPresets = []struct{ name, expr string }{
	{"Normal", "[rs, gs, bs]"},
	{"Multiply", "[rb*rs, gb*gs, bb*bs]"},
	{"Screen", "[rb + rs - rb*rs, gb + gs - gb*gs, bb + bs - bb*bs]"},
	{"Overlay", "[rb<0.5?2*rb*rs:1-2*(1-rb)*(1-rs), gb<0.5?2*gb*gs:1-2*(1-gb)*(1-gs), bb<0.5?2*bb*bs:1-2*(1-bb)*(1-bs)]"},
}

// Defaults returns the built-in presets with fresh IDs and timestamps.
func Defaults(ids IDGenerator, clock Clock) []Item {
	now := clock.Now().UnixMilli()
	items := make([]Item, 0, len(defaultPresets))
	for _, d := range defaultPresets {
		items = append(items, Item{ID: ids.Generate(), Name: d.name, Formula: Formula{Expr: d.expr}, CreatedAt: now})
	}
	return items
}

// Find returns the first item whose name matches name after normalisation.
func Find(items []Item, name string) (Item, bool) {
	name = normalize(name)
	for _, it := range items {
		if normalize(it.Name) == name {
			return it, true
		}
	}
	return Item{}, false
}

// normalize trims and NFC-normalises user text.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// newItem builds a validated item for storage.
func newItem(name, expr string, ids IDGenerator, clock Clock) (Item, error) {
	name, expr = normalize(name), normalize(expr)
	if name == "" {
		return Item{}, ErrEmptyName
	}
	if expr == "" {
		return Item{}, ErrEmptyExpr
	}
	return Item{ID: ids.Generate(), Name: name, Formula: Formula{Expr: expr}, CreatedAt: clock.Now().UnixMilli()}, nil
}
