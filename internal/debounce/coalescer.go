package debounce

import (
	"sync"
	"time"

	"github.com/wandb/runlens/internal/collections"
)

// Coalescer merges bursts of events for the same key into one callback.
//
// A key fires once no event for it has been added for the quiet period.
// Keys fire in deadline order, one at a time, on the coalescer's own
// goroutine.
type Coalescer struct {
	quiet time.Duration
	fire  func(key string)

	mu      sync.Mutex
	pending map[string]*collections.DoublyLinkedListNode[pendingKey]

	// queue holds pending keys ordered by deadline, earliest first.
	//
	// Every key has the same quiet period, so appending on each event
	// keeps it sorted.
	queue   collections.DoublyLinkedList[pendingKey]
	stopped bool

	// fireMu serializes callbacks from the loop and from Flush.
	fireMu sync.Mutex

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type pendingKey struct {
	key      string
	deadline time.Time
}

// NewCoalescer starts a Coalescer that calls fire for each key after it
// has been quiet for the given period.
func NewCoalescer(quiet time.Duration, fire func(key string)) *Coalescer {
	c := &Coalescer{
		quiet:   quiet,
		fire:    fire,
		pending: make(map[string]*collections.DoublyLinkedListNode[pendingKey]),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop()
	}()

	return c
}

// Add records an event for the key, postponing its callback.
func (c *Coalescer) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	deadline := time.Now().Add(c.quiet)
	if node, ok := c.pending[key]; ok {
		node.Value.deadline = deadline
		node.MoveToBack()
	} else {
		c.pending[key] = c.queue.Append(pendingKey{key: key, deadline: deadline})
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of keys waiting to fire.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Flush fires all pending keys immediately, in deadline order.
func (c *Coalescer) Flush() {
	c.fireMu.Lock()
	defer c.fireMu.Unlock()

	for _, key := range c.popDue(time.Time{}) {
		c.fire(key)
	}
}

// Stop discards pending keys and waits for a running callback to return.
//
// It must not be called from the callback.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	clear(c.pending)
	c.queue = collections.DoublyLinkedList[pendingKey]{}
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
}

// popDue removes and returns the keys whose deadline is not after now.
//
// A zero now pops every key.
func (c *Coalescer) popDue(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []string
	for node := c.queue.First(); node != nil; node = c.queue.First() {
		if !now.IsZero() && node.Value.deadline.After(now) {
			break
		}

		due = append(due, node.Value.key)
		delete(c.pending, node.Value.key)
		node.Remove()
	}
	return due
}

// nextDeadline returns the earliest pending deadline.
func (c *Coalescer) nextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := c.queue.First()
	if node == nil {
		return time.Time{}, false
	}
	return node.Value.deadline, true
}

func (c *Coalescer) loop() {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if deadline, ok := c.nextDeadline(); ok {
			timer.Reset(time.Until(deadline))
			timerC = timer.C
		}

		select {
		case <-c.done:
			return
		case <-c.wake:
			timer.Stop()
			continue
		case <-timerC:
		}

		c.fireMu.Lock()
		for _, key := range c.popDue(time.Now()) {
			select {
			case <-c.done:
				c.fireMu.Unlock()
				return
			default:
			}
			c.fire(key)
		}
		c.fireMu.Unlock()
	}
}
