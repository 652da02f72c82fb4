package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRunTimeout is the wall-clock ceiling applied when none is configured.
const DefaultRunTimeout = 10 * time.Minute

// ErrRunTimeout is returned when a run exceeds its wall-clock ceiling.
var ErrRunTimeout = fmt.Errorf("run exceeded its time limit: %w", context.DeadlineExceeded)

// Guard enforces the run wall-clock ceiling and the host allowlist for
// dataset downloads.
// - Wrap: runs a function under a timeout and returns as soon as it expires
// - AllowHost: hostname allowlist; an empty allowlist admits every host
type Guard struct {
	timeout time.Duration
	allow   map[string]bool
}

func NewGuard(timeout time.Duration, allowlist []string) *Guard {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	m := make(map[string]bool, len(allowlist))
	for _, n := range allowlist {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			m[n] = true
		}
	}
	return &Guard{timeout: timeout, allow: m}
}

// Timeout returns the configured ceiling.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// Wrap runs fn under the ceiling. When the ceiling fires Wrap returns
// ErrRunTimeout without waiting for fn; fn sees its context cancelled and
// any late result is discarded.
func (g *Guard) Wrap(ctx context.Context, run func(ctx context.Context) error) error {
	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(execCtx)
	}()

	select {
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrRunTimeout
		}
		return execCtx.Err()
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrRunTimeout
		}
		return err
	}
}

// AllowHost reports whether downloads from host are permitted. Subdomains of
// an allowlisted domain are accepted.
func (g *Guard) AllowHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if len(g.allow) == 0 {
		return true
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	for {
		if g.allow[host] {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}
