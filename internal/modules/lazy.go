package modules

// lazy holds a value computed at most once. A failed computation leaves the
// cell empty so the next call retries. Not safe for concurrent use.
type lazy[T any] struct {
	done bool
	val  T
}

func (l *lazy[T]) get(compute func() (T, error)) (T, error) {
	if l.done {
		return l.val, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	l.val = v
	l.done = true
	return v, nil
}
