package feed

import "errors"

// ErrDecodeMalformed is returned for any frame that cannot be parsed:
// too short, declared length mismatch, or an unrecognized response code.
// Per the error-handling design, this never tears down the connection;
// callers increment a counter and drop the frame.
var ErrDecodeMalformed = errors.New("feed: malformed frame")

// ErrFrameTooShort is wrapped into ErrDecodeMalformed when a frame is
// shorter than its own 8-byte header, or shorter than the fixed size of
// its packet kind.
var ErrFrameTooShort = errors.New("feed: frame shorter than header")

// ErrLengthMismatch is wrapped into ErrDecodeMalformed when the header's
// declared message length disagrees with the fixed size of a
// fixed-size packet kind.
var ErrLengthMismatch = errors.New("feed: declared length mismatch")

// ErrUnknownResponseCode is wrapped into ErrDecodeMalformed for a
// response code outside the taxonomy in the frame table.
var ErrUnknownResponseCode = errors.New("feed: unknown response code")
