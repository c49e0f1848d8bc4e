// Package session keeps page sessions alive between the initial page render
// and the requests and websocket that later act on them.
package session

import "context"

type Store[T any] interface {
	Get(ctx context.Context, id string) (T, bool, error)
	Put(ctx context.Context, id string, v T) error
	Delete(ctx context.Context, id string) error
	NewID() string
}
