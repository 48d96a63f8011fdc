// Package relay provides a small synchronous publish/subscribe bus.
//
// A Relay is an explicit value owned by whoever creates it and passed by
// reference to the collaborators that publish or subscribe; there is no
// process-wide instance. Handlers run on the caller's goroutine, in
// registration order, and the first handler error aborts the trigger.
package relay

// Handler is invoked with the arguments passed to Trigger.
type Handler func(args ...any) error

type subscription struct {
	handler Handler
	once    bool
}

// Relay dispatches named events to registered handlers.
// The zero value is ready to use. A Relay is not safe for concurrent use.
type Relay struct {
	handlers map[string][]*subscription
	bonds    []*Relay
}

// New returns an empty Relay.
func New() *Relay {
	return &Relay{}
}

// On registers a persistent handler for event.
func (r *Relay) On(event string, h Handler) {
	r.add(event, h, false)
}

// Once registers a handler that is removed after its first invocation.
func (r *Relay) Once(event string, h Handler) {
	r.add(event, h, true)
}

func (r *Relay) add(event string, h Handler, once bool) {
	if h == nil {
		return
	}
	if r.handlers == nil {
		r.handlers = make(map[string][]*subscription)
	}
	r.handlers[event] = append(r.handlers[event], &subscription{handler: h, once: once})
}

// Off removes every handler registered for event.
func (r *Relay) Off(event string) {
	delete(r.handlers, event)
}

// Count returns the number of handlers currently registered for event.
func (r *Relay) Count(event string) int {
	return len(r.handlers[event])
}

// Bond forwards every event triggered on src to r after src's own handlers
// have run. Bonding r to itself is ignored.
func (r *Relay) Bond(src *Relay) {
	if src == nil || src == r {
		return
	}
	src.bonds = append(src.bonds, r)
}

// Trigger invokes the handlers registered for event with args.
//
// The handler list is snapshotted before dispatch, so handlers added while
// triggering only see later triggers. Once handlers are removed before they
// run. A handler error stops dispatch and is returned unchanged; bonded
// relays are not reached in that case.
func (r *Relay) Trigger(event string, args ...any) error {
	subs := r.handlers[event]
	if len(subs) > 0 {
		snapshot := make([]*subscription, len(subs))
		copy(snapshot, subs)

		for _, s := range snapshot {
			if s.once {
				r.remove(event, s)
			}
			if err := s.handler(args...); err != nil {
				return err
			}
		}
	}

	for _, b := range r.bonds {
		if err := b.Trigger(event, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) remove(event string, target *subscription) {
	subs := r.handlers[event]
	for i, s := range subs {
		if s == target {
			r.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.handlers[event]) == 0 {
		delete(r.handlers, event)
	}
}
