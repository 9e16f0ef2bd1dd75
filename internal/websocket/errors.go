package websocket

import "errors"

// ErrMalformed is returned for frames that are not a valid action message.
var ErrMalformed = errors.New("malformed message")
