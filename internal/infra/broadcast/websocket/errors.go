package websocket

import "errors"

// ErrBufferFull reports that a post could not be queued in time.
var ErrBufferFull = errors.New("websocket channel send buffer full")
