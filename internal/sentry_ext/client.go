// Package sentry_ext reports errors to Sentry with duplicate suppression.
package sentry_ext

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type Params struct {
	// DSN is the Data Source Name. Reporting is disabled when empty.
	DSN string

	// Release is the runlens version.
	Release string

	// Commit is the git commit runlens was built from.
	Commit string

	// Environment distinguishes development builds from releases.
	Environment string

	// Window is how long an identical message is suppressed after being sent.
	Window time.Duration

	// CacheSize bounds the number of distinct messages remembered.
	CacheSize int

	// Transport overrides the Sentry transport, for tests.
	Transport sentry.Transport
}

// Client sends events to Sentry through a dedicated hub.
type Client struct {
	hub    *sentry.Hub
	recent *dedup
}

// New creates a Client.
//
// Returns nil if Sentry cannot be initialized. A nil Client drops
// all events.
func New(params Params) *Client {
	sentryClient, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              params.DSN,
		AttachStacktrace: true,
		Release:          params.Release,
		Dist:             params.Commit,
		Environment:      params.Environment,
		Transport:        params.Transport,
	})
	if err != nil {
		slog.Error("sentry_ext: failed to initialize sentry", "err", err)
		return nil
	}

	recent, err := newDedup(params.CacheSize, params.Window)
	if err != nil {
		slog.Error("sentry_ext: failed to create cache", "err", err)
		return nil
	}

	if params.DSN == "" && params.Transport == nil {
		slog.Debug("sentry_ext: sentry is disabled, no DSN provided")
	}

	return &Client{
		hub:    sentry.NewHub(sentryClient, sentry.NewScope()),
		recent: recent,
	}
}

// CaptureException reports an error unless it was reported recently.
func (c *Client) CaptureException(err error, tags map[string]string) {
	if c == nil || !c.recent.allow(err.Error()) {
		return
	}

	c.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		c.hub.CaptureException(err)
	})
}

// CaptureMessage reports a message unless it was reported recently.
func (c *Client) CaptureMessage(msg string, tags map[string]string) {
	if c == nil || !c.recent.allow(msg) {
		return
	}

	c.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		c.hub.CaptureMessage(msg)
	})
}

// Reraise reports a recovered panic value and panics with it again.
func (c *Client) Reraise(value any, tags map[string]string) {
	if value == nil {
		return
	}

	err, ok := value.(error)
	if !ok {
		err = fmt.Errorf("%v", value)
	}
	c.CaptureException(errors.Join(errors.New("panic"), err), tags)
	c.Flush(2 * time.Second)
	panic(value)
}

// Flush waits for queued events to be sent.
func (c *Client) Flush(timeout time.Duration) bool {
	if c == nil {
		return true
	}
	return c.hub.Flush(timeout)
}
