package cache

import "errors"

var (
	// ErrNoFetcher is returned when no fetch function is registered for a key's operation
	ErrNoFetcher = errors.New("no fetcher registered")
)
