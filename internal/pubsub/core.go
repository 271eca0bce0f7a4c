package pubsub

import "sync"

type Topic string

type Handler func(args ...interface{})

// Core stores subscribers for each event
type Core struct {
	subs map[Topic][]Handler

	mu sync.RWMutex
}

func New() *Core {
	return &Core{subs: make(map[Topic][]Handler)}
}

// Subscribe handler to specified topic.
func (c *Core) Subscribe(topic Topic, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs[topic] = append(c.subs[topic], h)
}

// Notify subscribers. Handlers run on the caller's goroutine.
func (c *Core) Notify(topic Topic, args ...interface{}) {
	c.mu.RLock()
	hs := make([]Handler, len(c.subs[topic]))
	copy(hs, c.subs[topic])
	c.mu.RUnlock()

	for _, h := range hs {
		h(args...)
	}
}
