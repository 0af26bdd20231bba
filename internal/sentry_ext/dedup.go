package sentry_ext

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	defaultWindow    = 5 * time.Minute
	defaultCacheSize = 100
)

// dedup remembers when each message was last sent.
type dedup struct {
	cache  *lru.Cache
	window time.Duration
	now    func() time.Time
}

func newDedup(size int, window time.Duration) (*dedup, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if window <= 0 {
		window = defaultWindow
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &dedup{cache: cache, window: window, now: time.Now}, nil
}

// allow reports whether msg may be sent and records the send time if so.
func (d *dedup) allow(msg string) bool {
	sum := md5.Sum([]byte(msg))
	key := hex.EncodeToString(sum[:])

	now := d.now()
	if last, ok := d.cache.Get(key); ok && now.Sub(last.(time.Time)) < d.window {
		return false
	}

	d.cache.Add(key, now)
	return true
}
