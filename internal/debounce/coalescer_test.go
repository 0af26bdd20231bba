package debounce_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandb/runlens/internal/debounce"
)

// recorder collects the keys fired by a Coalescer.
type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) fire(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, key)
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func TestCoalescer_MergesBursts(t *testing.T) {
	r := &recorder{}
	c := debounce.NewCoalescer(50*time.Millisecond, r.fire)
	defer c.Stop()

	for range 5 {
		c.Add("a.wandb")
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t,
		func() bool { return len(r.keys()) == 1 },
		2*time.Second,
		5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"a.wandb"}, r.keys())
	assert.Zero(t, c.Pending())
}

func TestCoalescer_FiresEachKey(t *testing.T) {
	r := &recorder{}
	c := debounce.NewCoalescer(20*time.Millisecond, r.fire)
	defer c.Stop()

	c.Add("a")
	c.Add("b")
	c.Add("a")

	require.Eventually(t,
		func() bool { return len(r.keys()) == 2 },
		2*time.Second,
		5*time.Millisecond)
	assert.Equal(t, []string{"b", "a"}, r.keys())
}

func TestCoalescer_EventPostponesKey(t *testing.T) {
	r := &recorder{}
	c := debounce.NewCoalescer(time.Hour, r.fire)
	defer c.Stop()

	c.Add("a")
	c.Add("b")
	c.Add("a")
	assert.Equal(t, 2, c.Pending())

	c.Flush()

	assert.Equal(t, []string{"b", "a"}, r.keys())
	assert.Zero(t, c.Pending())
}

func TestCoalescer_StopDiscardsPending(t *testing.T) {
	r := &recorder{}
	c := debounce.NewCoalescer(time.Hour, r.fire)

	c.Add("a")
	c.Stop()
	c.Add("b")
	c.Flush()
	c.Stop()

	assert.Empty(t, r.keys())
	assert.Zero(t, c.Pending())
}
