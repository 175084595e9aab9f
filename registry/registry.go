// Package registry implements the worker slot table shared by the supervisor
// and its workers.
//
// Every mutation runs under a registry-wide lock that is acquired with a
// bounded wait. If the lock cannot be acquired in time the operation logs a
// warning and proceeds without it. The supervisor periodically calls
// ReleaseStuck to force-release a lock that has been held for too long.
package registry

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// MaxSlots is the hard ceiling on the slot table size.
	MaxSlots = 512

	// DefaultLockWait is the default bounded wait for the registry lock.
	DefaultLockWait = 5 * time.Second

	// maxRequestInfo is the maximum length of the current request string.
	maxRequestInfo = 128
)

// ErrPoolFull is returned by Register if there is no free slot.
var ErrPoolFull = errors.New("registry: worker pool is full")

// Conn describes the connection a worker is serving.
type Conn struct {
	Connected  bool
	Start      time.Time
	End        time.Time
	RemoteAddr string
	RemotePort int
	// Request is the request line of the current or last request.
	Request string
	// Code is the last response status code.
	Code     int
	Received time.Time
	Sent     time.Time
	// Requests is the number of requests served on the connection.
	Requests int
}

// Slot is a worker record. An ID of zero marks a free slot.
type Slot struct {
	Index         int
	ID            int64
	Name          string
	Created       time.Time
	Conns         uint64
	Requests      uint64
	ExitRequested bool
	Conn          Conn
}

// Counters are pool-wide statistics. Running is never less than Active.
type Counters struct {
	Started  time.Time
	Launched uint64
	Running  int
	Active   int
	Conns    uint64
	Requests uint64
}

// Idle returns the number of registered workers without a connection.
func (c Counters) Idle() int {
	return c.Running - c.Active
}

// Options are the options for a Registry.
type Options struct {
	// Size is the number of slots. It is capped at MaxSlots.
	Size int

	// LockWait is the bounded wait for the registry lock. Defaults to
	// DefaultLockWait.
	LockWait time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Size <= 0 || o.Size > MaxSlots {
		o.Size = MaxSlots
	}
	if o.LockWait <= 0 {
		o.LockWait = DefaultLockWait
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Registry is a fixed-size table of worker slots plus pool counters.
type Registry struct {
	clock    clock.Clock
	log      *zap.Logger
	lockWait time.Duration

	sem *semaphore.Weighted

	// valveMu guards the lock holder bookkeeping below.
	valveMu   sync.Mutex
	held      bool
	heldGen   uint64
	heldSince time.Time

	slots    []Slot
	counters Counters
}

// New returns a new Registry.
func New(o Options) *Registry {
	o.setDefaults()
	r := &Registry{
		clock:    o.Clock,
		log:      o.Logger,
		lockWait: o.LockWait,
		sem:      semaphore.NewWeighted(1),
		slots:    make([]Slot, o.Size),
	}
	for i := range r.slots {
		r.slots[i].Index = i
	}
	r.counters.Started = r.clock.Now()
	return r
}

// Size returns the number of slots.
func (r *Registry) Size() int {
	return len(r.slots)
}

// lock acquires the registry lock and returns the function that releases it.
func (r *Registry) lock() func() {
	ctx, cancel := context.WithTimeout(context.Background(), r.lockWait)
	err := r.sem.Acquire(ctx, 1)
	cancel()
	if err != nil {
		// Proceeding unlocked races with the holder. This degraded mode
		// keeps the pool running past a stalled holder and must not become
		// a blocking wait.
		r.log.Warn("Failed to acquire registry lock, proceeding without it",
			zap.Duration("wait", r.lockWait),
		)
		return func() {}
	}

	r.valveMu.Lock()
	r.heldGen++
	gen := r.heldGen
	r.held = true
	r.heldSince = r.clock.Now()
	r.valveMu.Unlock()

	return func() {
		r.valveMu.Lock()
		defer r.valveMu.Unlock()
		if !r.held || r.heldGen != gen {
			// Force-released by ReleaseStuck.
			return
		}
		r.held = false
		r.sem.Release(1)
	}
}

// ReleaseStuck force-releases the registry lock if it has been held for at
// least maxAge. It reports whether the lock was released. The late release
// by the previous holder is ignored. The holder may still be mutating slots
// when the next caller acquires the lock; the pool accepts that race to keep
// running past a stuck holder.
func (r *Registry) ReleaseStuck(maxAge time.Duration) bool {
	r.valveMu.Lock()
	defer r.valveMu.Unlock()
	if !r.held {
		return false
	}
	age := r.clock.Since(r.heldSince)
	if age < maxAge {
		return false
	}
	r.held = false
	r.sem.Release(1)
	r.log.Warn("Force-released stuck registry lock", zap.Duration("held", age))
	return true
}

// Register allocates the first free slot for the worker. The launch counter
// is incremented even if the pool is full.
func (r *Registry) Register(id int64, name string) (int, error) {
	unlock := r.lock()
	defer unlock()

	r.counters.Launched++
	for i := range r.slots {
		s := &r.slots[i]
		if s.ID != 0 {
			continue
		}
		*s = Slot{
			Index:   i,
			ID:      id,
			Name:    name,
			Created: r.clock.Now(),
		}
		r.counters.Running++
		return i, nil
	}
	return -1, ErrPoolFull
}

// Deregister frees the slot.
func (r *Registry) Deregister(slot int) {
	unlock := r.lock()
	defer unlock()
	r.clear(slot)
}

// DeregisterWorker frees the slot held by the worker with the given ID. It
// reports whether such a slot was found.
func (r *Registry) DeregisterWorker(id int64) bool {
	unlock := r.lock()
	defer unlock()
	slot, ok := r.find(id)
	if ok {
		r.clear(slot)
	}
	return ok
}

func (r *Registry) clear(slot int) {
	s := &r.slots[slot]
	if s.ID == 0 {
		return
	}
	if s.Conn.Connected && r.counters.Active > 0 {
		r.counters.Active--
	}
	if r.counters.Running > 0 {
		r.counters.Running--
	}
	s.ID = 0
	s.ExitRequested = false
	s.Conn.Connected = false
}

// FindSlot returns the slot held by the worker with the given ID.
func (r *Registry) FindSlot(id int64) (int, bool) {
	unlock := r.lock()
	defer unlock()
	return r.find(id)
}

func (r *Registry) find(id int64) (int, bool) {
	if id == 0 {
		return -1, false
	}
	for i := range r.slots {
		if r.slots[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Reconcile recomputes the running and active counters from the slot table
// and corrects them if they drifted. It reports whether a correction was made.
func (r *Registry) Reconcile() bool {
	unlock := r.lock()
	defer unlock()

	running, active := 0, 0
	for i := range r.slots {
		if r.slots[i].ID == 0 {
			continue
		}
		running++
		if r.slots[i].Conn.Connected {
			active++
		}
	}
	if running == r.counters.Running && active == r.counters.Active {
		return false
	}
	r.log.Info("Corrected pool counters",
		zap.Int("running", running),
		zap.Int("cachedRunning", r.counters.Running),
		zap.Int("active", active),
		zap.Int("cachedActive", r.counters.Active),
	)
	r.counters.Running = running
	r.counters.Active = active
	return true
}

// Counters returns a copy of the pool counters.
func (r *Registry) Counters() Counters {
	unlock := r.lock()
	defer unlock()
	return r.counters
}

// Snapshot returns copies of the counters and of all occupied slots.
func (r *Registry) Snapshot() (Counters, []Slot) {
	unlock := r.lock()
	defer unlock()
	var slots []Slot
	for i := range r.slots {
		if r.slots[i].ID != 0 {
			slots = append(slots, r.slots[i])
		}
	}
	return r.counters, slots
}

// RequestIdleExit sets the exit flag of one idle worker that was not asked to
// exit yet. It returns the worker ID or false if there is no such worker.
func (r *Registry) RequestIdleExit() (int64, bool) {
	unlock := r.lock()
	defer unlock()
	for i := len(r.slots) - 1; i >= 0; i-- {
		s := &r.slots[i]
		if s.ID == 0 || s.Conn.Connected || s.ExitRequested {
			continue
		}
		s.ExitRequested = true
		return s.ID, true
	}
	return 0, false
}

// RequestExitAll sets the exit flag of every worker and returns the number of
// workers flagged.
func (r *Registry) RequestExitAll() int {
	unlock := r.lock()
	defer unlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].ID != 0 {
			r.slots[i].ExitRequested = true
			n++
		}
	}
	return n
}

// ExitRequested reports whether the worker in the slot was asked to exit. A
// slot that no longer belongs to the worker also counts as an exit request.
func (r *Registry) ExitRequested(slot int, id int64) bool {
	unlock := r.lock()
	defer unlock()
	s := &r.slots[slot]
	return s.ID != id || s.ExitRequested
}

// ConnStart records a new connection on the slot.
func (r *Registry) ConnStart(slot int, remote net.Addr) {
	unlock := r.lock()
	defer unlock()
	s := &r.slots[slot]
	if s.ID == 0 {
		return
	}
	host, port := splitAddr(remote)
	if !s.Conn.Connected {
		r.counters.Active++
	}
	s.Conn = Conn{
		Connected:  true,
		Start:      r.clock.Now(),
		RemoteAddr: host,
		RemotePort: port,
	}
	s.Conns++
	r.counters.Conns++
}

// ConnRequest records a request received on the slot's connection.
func (r *Registry) ConnRequest(slot int, requestLine string, received time.Time) {
	unlock := r.lock()
	defer unlock()
	s := &r.slots[slot]
	if s.ID == 0 {
		return
	}
	if len(requestLine) > maxRequestInfo {
		requestLine = requestLine[:maxRequestInfo]
	}
	s.Conn.Request = requestLine
	s.Conn.Received = received
	s.Conn.Code = 0
	s.Conn.Requests++
	s.Requests++
	r.counters.Requests++
}

// ConnResponse records the response sent on the slot's connection.
func (r *Registry) ConnResponse(slot int, code int) {
	unlock := r.lock()
	defer unlock()
	s := &r.slots[slot]
	if s.ID == 0 {
		return
	}
	s.Conn.Code = code
	s.Conn.Sent = r.clock.Now()
}

// ConnEnd records the end of the slot's connection.
func (r *Registry) ConnEnd(slot int) {
	unlock := r.lock()
	defer unlock()
	s := &r.slots[slot]
	if s.ID == 0 || !s.Conn.Connected {
		return
	}
	s.Conn.Connected = false
	s.Conn.End = r.clock.Now()
	if r.counters.Active > 0 {
		r.counters.Active--
	}
}

func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
