package filelock

import (
	"context"
	"os"
)

// Ensure runs fn to create target unless target already exists. Concurrent
// callers for the same target are serialized by Lock, and fn runs at most
// once as long as it creates target on success.
func Ensure(ctx context.Context, target string, fn func() error) error {
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	unlock, err := Lock(ctx, target)
	if err != nil {
		return err
	}
	defer unlock()

	// Someone else may have finished while we waited.
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	return fn()
}
