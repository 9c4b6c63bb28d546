package jobs

import "errors"

var ErrLockFailed = errors.New("failed to acquire job lock")
