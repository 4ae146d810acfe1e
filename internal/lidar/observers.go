package lidar

import (
	"sync"

	"github.com/google/uuid"
)

// Observers is an ordered list of callbacks keyed by uuid. Notify runs the
// callbacks synchronously in registration order. Callbacks may cancel their
// own (or another) subscription while being notified.
type Observers[T any] struct {
	mu    sync.Mutex
	order []string
	byID  map[string]T
}

// Add registers fn and returns its subscription handle.
func (o *Observers[T]) Add(fn T) Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.byID == nil {
		o.byID = make(map[string]T)
	}
	id := uuid.NewString()
	o.order = append(o.order, id)
	o.byID[id] = fn
	return &subscription[T]{id: id, owner: o}
}

// Remove unregisters the callback with the given id. Unknown ids are ignored.
func (o *Observers[T]) Remove(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.byID[id]; !ok {
		return
	}
	delete(o.byID, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered callbacks.
func (o *Observers[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// Notify calls visit for each registered callback. The list is snapshotted
// first so callbacks can subscribe or cancel without deadlocking.
func (o *Observers[T]) Notify(visit func(T)) {
	o.mu.Lock()
	fns := make([]T, 0, len(o.order))
	for _, id := range o.order {
		fns = append(fns, o.byID[id])
	}
	o.mu.Unlock()
	for _, fn := range fns {
		visit(fn)
	}
}

type subscription[T any] struct {
	id    string
	owner *Observers[T]
	once  sync.Once
}

func (s *subscription[T]) ID() string { return s.id }

func (s *subscription[T]) Cancel() {
	s.once.Do(func() { s.owner.Remove(s.id) })
}
