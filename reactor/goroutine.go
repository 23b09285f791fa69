package reactor

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the numeric id of the calling goroutine by parsing
// the header line of a runtime.Stack dump. Grounded on the teacher's thread-
// affinity check (eventloop/loop.go inEventLoop), which uses the same trick
// to detect re-entrant calls from the wrong goroutine without requiring
// callers to thread a context value through every call.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
