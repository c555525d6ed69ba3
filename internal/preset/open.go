package preset

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend. For BackendJSON path is the data
// directory; for BackendSQLite it is the database file.
func Open(ctx context.Context, backend, path string, opts ...Option) (Store, error) {
	switch backend {
	case BackendJSON, "":
		s, err := OpenJSON(path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown preset backend %q", backend)
	}
}
