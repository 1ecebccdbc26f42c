// Package storage defines the error taxonomy shared by gatehouse persistence
// backends. The PostgreSQL implementation lives in storage/postgres.
//
// Callers classify failures with errors.Is:
//
//	role, err := store.GetRole(ctx, id)
//	switch {
//	case errors.Is(err, storage.ErrNotFound):
//		// 404
//	case errors.Is(err, storage.ErrUnavailable):
//		// 503
//	}
//
// ErrConflict covers unique and foreign key violations so that callers never
// need to inspect driver specific error codes.
package storage
