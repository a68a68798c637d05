package depth

import "errors"

// ErrDecodeMalformed marks any depth frame that cannot be parsed; per
// the decode error policy, the frame is dropped and a counter
// incremented, the connection is never torn down for this.
var ErrDecodeMalformed = errors.New("depth: malformed frame")

// ErrUnknownResponseCode is wrapped into ErrDecodeMalformed for a code
// outside {41, 51, 50}.
var ErrUnknownResponseCode = errors.New("depth: unknown response code")

// ErrAuthExpired marks the fast-reconnect-with-no-data pattern: two
// consecutive reconnect cycles, each receiving zero frames, within
// 2*ReconnectDelay of each other. The feed is not retried further once
// this is detected; an operator must refresh the access token.
var ErrAuthExpired = errors.New("depth: auth expired (zero-frame reconnect loop)")
