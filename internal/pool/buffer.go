// Package pool provides reusable copy buffers for streamed transfers.
// Streamed downloads move through fixed-size buffers; pooling them keeps
// allocation pressure flat under many concurrent transfers.
package pool

import (
	"sync"
)

// CopyBufferSize is the chunk size for streamed transfers (256KB).
const CopyBufferSize = 256 * 1024

var copyBuffers = sync.Pool{
	New: func() any {
		buf := make([]byte, CopyBufferSize)
		return &buf
	},
}

// GetCopyBuffer returns a transfer buffer from the pool. The caller must
// return it with PutCopyBuffer when the transfer finishes.
func GetCopyBuffer() *[]byte {
	return copyBuffers.Get().(*[]byte)
}

// PutCopyBuffer returns a buffer to the pool. The buffer must not be
// used after this call.
func PutCopyBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) != CopyBufferSize {
		return
	}
	copyBuffers.Put(buf)
}
