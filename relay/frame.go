// Package relay maintains the long-lived connection to the kernel process
// and speaks its newline-delimited JSON-RPC framing. The kernel owns the
// real IRC sockets; everything the bridge knows about network traffic
// arrives through this link.
package relay

import "bytes"

// LineBuffer reassembles newline-delimited frames from an arbitrarily
// chunked byte stream. The unterminated remainder of each read is retained
// and prefixed to the next one, so chunk boundaries never split or reorder
// frames.
type LineBuffer struct {
	rem []byte
}

// Feed appends p to the buffer and returns every complete frame now
// available, in arrival order, without the trailing newline. Frames are
// copies; callers may retain them.
func (b *LineBuffer) Feed(p []byte) [][]byte {
	b.rem = append(b.rem, p...)
	var frames [][]byte
	for {
		i := bytes.IndexByte(b.rem, '\n')
		if i < 0 {
			return frames
		}
		line := make([]byte, i)
		copy(line, b.rem[:i])
		frames = append(frames, line)
		b.rem = b.rem[i+1:]
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (b *LineBuffer) Pending() int {
	return len(b.rem)
}
