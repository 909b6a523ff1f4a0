package audio

import (
	"errors"
	"fmt"
)

// ErrOddLength is returned when a PCM16 byte buffer cannot be split into whole samples
var ErrOddLength = errors.New("PCM16 data length must be even")

// DecodeError reports a transport chunk that could not be turned back into samples.
// The offending chunk should be dropped; the pipeline carries on with the next one.
type DecodeError struct {
	Op  string // "base64" or "pcm16"
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode (%s): %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a DecodeError
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
