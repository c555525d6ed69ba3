package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeFile parses a collection. It fails with ErrInvalidFile when data is
// not JSON, has a missing or zero version, or lacks an items array.
func decodeFile(data []byte) (File, error) {
	var raw struct {
		Version float64         `json:"version"`
		Items   json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if raw.Version == 0 {
		return File{}, fmt.Errorf("%w: missing version", ErrInvalidFile)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw.Items), []byte("[")) {
		return File{}, fmt.Errorf("%w: items is not an array", ErrInvalidFile)
	}
	var items []Item
	if err := json.Unmarshal(raw.Items, &items); err != nil {
		return File{}, fmt.Errorf("%w: items: %v", ErrInvalidFile, err)
	}
	return File{Version: int(raw.Version), Items: items}, nil
}

// encodeFile renders a collection with two-space indentation.
func encodeFile(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.MarshalIndent(File{Version: FileVersion, Items: items}, "", "  ")
}

func mergeKey(it Item) string {
	return it.Name + "__" + it.Formula.Expr
}

// merge combines current and imported items. Imported items get fresh IDs
// and timestamps. Items sharing a name and expression collapse into one: the
// position is that of the first occurrence and the value that of the last.
func merge(current, imported []Item, ids IDGenerator, clock Clock) []Item {
	now := clock.Now().UnixMilli()
	all := make([]Item, 0, len(current)+len(imported))
	all = append(all, current...)
	for _, it := range imported {
		it.ID = ids.Generate()
		it.CreatedAt = now
		it.Name = normalize(it.Name)
		it.Formula.Expr = normalize(it.Formula.Expr)
		all = append(all, it)
	}

	index := make(map[string]int, len(all))
	out := make([]Item, 0, len(all))
	for _, it := range all {
		k := mergeKey(it)
		if i, ok := index[k]; ok {
			out[i] = it
			continue
		}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}
