package lock

import "errors"

// ErrLockTimeout is returned when a key cannot be acquired before the deadline.
var ErrLockTimeout = errors.New("lock acquisition timeout")
