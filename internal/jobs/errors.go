package jobs

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidRequest = errors.New("invalid request")
