package manager

import (
	"fmt"
	"sync"

	"github.com/loykin/lokcaldev/internal/driver"
	"github.com/loykin/lokcaldev/internal/logs"
	"github.com/loykin/lokcaldev/internal/service"
)

// Registry is the shared state of one supervisor run: the last known info
// per service, the children this run owns and the current tail session.
// The mutex is held only around map access. A panic inside a critical
// section poisons the registry for good. Its errors carry no Op; callers
// attach the operation with service.WithOp.
type Registry struct {
	mu       sync.Mutex
	poisoned bool
	services map[string]service.Info
	children map[string]*driver.Child
	tail     *logs.Session
}

func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]service.Info),
		children: make(map[string]*driver.Child),
	}
}

func (r *Registry) with(fn func()) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return service.Wrap("", "", service.ErrLockPoisoned, nil)
	}
	defer func() {
		if p := recover(); p != nil {
			r.poisoned = true
			err = service.Wrap("", "", service.ErrLockPoisoned, fmt.Errorf("panic: %v", p))
		}
	}()
	fn()
	return nil
}

// Ensure inserts info unless id is already registered.
func (r *Registry) Ensure(info service.Info) error {
	return r.with(func() {
		if _, ok := r.services[info.ID]; !ok {
			r.services[info.ID] = info.Clone()
		}
	})
}

func (r *Registry) Get(id string) (info service.Info, ok bool, err error) {
	err = r.with(func() {
		var cur service.Info
		cur, ok = r.services[id]
		if ok {
			info = cur.Clone()
		}
	})
	return info, ok, err
}

// Update applies fn to the entry for id. It reports false when id is unknown.
func (r *Registry) Update(id string, fn func(*service.Info)) (ok bool, err error) {
	err = r.with(func() {
		var cur service.Info
		cur, ok = r.services[id]
		if !ok {
			return
		}
		fn(&cur)
		r.services[id] = cur
	})
	return ok, err
}

func (r *Registry) IDs() (ids []string, err error) {
	err = r.with(func() {
		ids = make([]string, 0, len(r.services))
		for id := range r.services {
			ids = append(ids, id)
		}
	})
	return ids, err
}

func (r *Registry) Snapshot() (out []service.Info, err error) {
	err = r.with(func() {
		out = make([]service.Info, 0, len(r.services))
		for _, info := range r.services {
			out = append(out, info.Clone())
		}
	})
	return out, err
}

// SetChild records the owned child for id and returns the one it replaced.
func (r *Registry) SetChild(id string, c *driver.Child) (prev *driver.Child, err error) {
	err = r.with(func() {
		prev = r.children[id]
		r.children[id] = c
	})
	return prev, err
}

// TakeChild removes and returns the owned child for id, nil when there is none.
func (r *Registry) TakeChild(id string) (c *driver.Child, err error) {
	err = r.with(func() {
		c = r.children[id]
		delete(r.children, id)
	})
	return c, err
}

// RemoveChildIf removes the handle only if it is still c, reporting whether it did.
func (r *Registry) RemoveChildIf(id string, c *driver.Child) (removed bool, err error) {
	err = r.with(func() {
		if r.children[id] == c {
			delete(r.children, id)
			removed = true
		}
	})
	return removed, err
}

// DrainChildren empties the child map and returns every handle.
func (r *Registry) DrainChildren() (out map[string]*driver.Child, err error) {
	err = r.with(func() {
		out = r.children
		r.children = make(map[string]*driver.Child)
	})
	return out, err
}

// SwapTail installs s as the current session and returns the previous one.
func (r *Registry) SwapTail(s *logs.Session) (prev *logs.Session, err error) {
	err = r.with(func() {
		prev = r.tail
		r.tail = s
	})
	return prev, err
}
