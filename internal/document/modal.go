package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// lockPath is the file whose existence marks the document as modal.
func (d *Document) lockPath() string {
	return d.path + ".lock"
}

// lockHolder reports whether the document is modal and, if so, the name of
// the scope holding it.
func (d *Document) lockHolder() (string, bool) {
	data, err := os.ReadFile(d.lockPath())
	if err != nil {
		return "", !errors.Is(err, os.ErrNotExist)
	}
	return strings.TrimSpace(string(data)), true
}

// Modal runs fn while holding the document's lock file. Only one scope can
// hold a document at a time, across processes; a second attempt fails with
// a *ConflictError. The lock is released when fn returns or panics.
func (d *Document) Modal(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(d.lockPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			holder, _ := d.lockHolder()
			return &ConflictError{Op: name, Holder: holder}
		}
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	_, werr := fmt.Fprintf(f, "%s (pid %d)\n", name, os.Getpid())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(d.lockPath())
		return fmt.Errorf("%s: acquire lock: %w", name, werr)
	}

	d.logger.Debug("modal scope entered", "scope", name)
	defer func() {
		if err := os.Remove(d.lockPath()); err != nil {
			d.logger.Warn("release document lock", "path", d.lockPath(), "error", err)
		}
		d.logger.Debug("modal scope left", "scope", name)
	}()

	return fn(ctx)
}
