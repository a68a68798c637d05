package ingest

import "errors"

// ErrMaxReconnectsExceeded is returned by Client.Run once the fixed
// reconnect budget is exhausted without a successful connection.
var ErrMaxReconnectsExceeded = errors.New("ingest: max reconnect attempts exceeded")
