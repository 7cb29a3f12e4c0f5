package watcher

import "context"

type IService interface {
	// Watch reports paths among the given files that were written, created
	// or replaced. Changes arriving faster than they are read are coalesced.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context, paths ...string) (<-chan string, error)
}
