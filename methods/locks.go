package methods

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultLockTimeout is the lock lifetime when the client does not
	// request one.
	DefaultLockTimeout = time.Hour

	// MaxLockTimeout caps the lock lifetime, including Infinite requests.
	MaxLockTimeout = 24 * time.Hour
)

// ErrLocked is returned by LockTable.Acquire if a conflicting lock is held.
var ErrLocked = errors.New("methods: resource is locked")

// Lock is a WebDAV write lock on a single resource.
type Lock struct {
	// Token is the opaquelocktoken URI identifying the lock.
	Token     string
	Path      string
	Exclusive bool
	// Owner is the raw XML content of the owner element.
	Owner   string
	Timeout time.Duration
	Expires time.Time
}

// LockTable holds WebDAV locks keyed by request path. Locks apply to the
// exact path only. It is safe for concurrent use.
type LockTable struct {
	clock clock.Clock

	mu    sync.Mutex
	locks map[string][]*Lock
}

// NewLockTable returns an empty lock table.
func NewLockTable(clk clock.Clock) *LockTable {
	return &LockTable{
		clock: clk,
		locks: make(map[string][]*Lock),
	}
}

// Acquire creates a lock on the path. An exclusive lock conflicts with any
// other lock and a shared lock conflicts with an exclusive one.
func (t *LockTable) Acquire(path string, exclusive bool, owner string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 || timeout > MaxLockTimeout {
		timeout = MaxLockTimeout
	}
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	held := t.live(path)
	if len(held) > 0 && (exclusive || held[0].Exclusive) {
		return nil, ErrLocked
	}
	l := &Lock{
		Token:     token,
		Path:      path,
		Exclusive: exclusive,
		Owner:     owner,
		Timeout:   timeout,
		Expires:   t.clock.Now().Add(timeout),
	}
	t.locks[path] = append(held, l)
	return l, nil
}

// Refresh extends a lock identified by one of the tokens in the If header.
func (t *LockTable) Refresh(path, cond string, timeout time.Duration) (*Lock, bool) {
	if timeout <= 0 || timeout > MaxLockTimeout {
		timeout = MaxLockTimeout
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.live(path) {
		if strings.Contains(cond, l.Token) {
			l.Timeout = timeout
			l.Expires = t.clock.Now().Add(timeout)
			c := *l
			return &c, true
		}
	}
	return nil, false
}

// Release removes the lock with the given token. It reports whether the lock
// was held.
func (t *LockTable) Release(path, token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.live(path)
	for i, l := range held {
		if l.Token != token {
			continue
		}
		held = append(held[:i], held[i+1:]...)
		if len(held) == 0 {
			delete(t.locks, path)
		} else {
			t.locks[path] = held
		}
		return true
	}
	return false
}

// Forget drops all locks on the path.
func (t *LockTable) Forget(path string) {
	t.mu.Lock()
	delete(t.locks, path)
	t.mu.Unlock()
}

// Allowed reports whether the path may be modified by a request carrying
// the given If header. It is true if the path is not locked or the header
// names one of its lock tokens.
func (t *LockTable) Allowed(path, cond string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.live(path)
	if len(held) == 0 {
		return true
	}
	for _, l := range held {
		if strings.Contains(cond, l.Token) {
			return true
		}
	}
	return false
}

// Len returns the number of live locks.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for p := range t.locks {
		n += len(t.live(p))
	}
	return n
}

// live returns unexpired locks on the path and drops the expired ones.
// The caller must hold t.mu.
func (t *LockTable) live(path string) []*Lock {
	held := t.locks[path]
	if len(held) == 0 {
		return nil
	}
	now := t.clock.Now()
	alive := held[:0]
	for _, l := range held {
		if now.Before(l.Expires) {
			alive = append(alive, l)
		}
	}
	if len(alive) == 0 {
		delete(t.locks, path)
		return nil
	}
	t.locks[path] = alive
	return alive
}

// ParseTimeout parses the Timeout request header. The first supported value
// wins; an absent or unsupported header yields DefaultLockTimeout.
func ParseTimeout(v string) time.Duration {
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "Infinite") {
			return MaxLockTimeout
		}
		if len(s) > len("Second-") && strings.EqualFold(s[:len("Second-")], "Second-") {
			n, err := strconv.ParseInt(s[len("Second-"):], 10, 64)
			if err != nil || n <= 0 {
				continue
			}
			if n > int64(MaxLockTimeout/time.Second) {
				return MaxLockTimeout
			}
			return time.Duration(n) * time.Second
		}
	}
	return DefaultLockTimeout
}

// newLockToken returns a random opaquelocktoken URI with a version 4 UUID.
func newLockToken() (string, error) {
	var u [16]byte
	if _, err := rand.Read(u[:]); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	u[6] = u[6]&0x0f | 0x40
	u[8] = u[8]&0x3f | 0x80
	return fmt.Sprintf("opaquelocktoken:%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:]), nil
}
