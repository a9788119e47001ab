package repo

import (
	"context"
	"sync"
)

// ConnectFunc produces a connected client.
type ConnectFunc func(ctx context.Context) (*Client, error)

// Lazy holds a client that is connected on first use. A successful
// connection is kept for the lifetime of the Lazy; a failed one is retried
// by the next Get.
type Lazy struct {
	connect ConnectFunc

	mu     sync.Mutex
	client *Client
}

func NewLazy(connect ConnectFunc) *Lazy {
	return &Lazy{connect: connect}
}

// Get returns the connected client, connecting if needed.
func (l *Lazy) Get(ctx context.Context) (*Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	c, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}
	l.client = c
	return c, nil
}

// Connected reports whether a previous Get succeeded.
func (l *Lazy) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client != nil
}
