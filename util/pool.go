package util

import (
	"bytes"
	"sync"
)

const (
	// ReadBufSize is the chunk size used for reads from the management
	// socket.
	ReadBufSize = 4 * 1024

	// maxPooledReply bounds the accumulators kept for reuse.  A status
	// report for a few thousand clients would otherwise pin its memory
	// for the rest of a watch.
	maxPooledReply = 1 << 20
)

var (
	chunkPool = sync.Pool{New: func() any {
		buf := make([]byte, ReadBufSize)
		return &buf
	}}
	replyPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}
)

// GetBuf returns a ReadBufSize chunk.  Hand it back with [PutBuf].
func GetBuf() *[]byte {
	return chunkPool.Get().(*[]byte)
}

// PutBuf recycles a chunk from [GetBuf].  nil is ignored.
func PutBuf(buf *[]byte) {
	if buf == nil || len(*buf) != ReadBufSize {
		return
	}
	chunkPool.Put(buf)
}

// GetReplyBuf returns an empty buffer for accumulating one reply.
func GetReplyBuf() *bytes.Buffer {
	return replyPool.Get().(*bytes.Buffer)
}

// PutReplyBuf resets b and recycles it unless it grew past
// maxPooledReply.  The caller must not keep references into b's bytes.
func PutReplyBuf(b *bytes.Buffer) {
	if b == nil || b.Cap() > maxPooledReply {
		return
	}
	b.Reset()
	replyPool.Put(b)
}
