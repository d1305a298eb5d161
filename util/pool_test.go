package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufPool_RoundTrip(t *testing.T) {
	buf := GetBuf()
	require.NotNil(t, buf)
	assert.Len(t, *buf, ReadBufSize)

	(*buf)[0] = 0xFF
	PutBuf(buf)

	buf2 := GetBuf()
	require.NotNil(t, buf2)
	assert.Len(t, *buf2, ReadBufSize)
	PutBuf(buf2)
}

func TestPutBuf_Ignored(t *testing.T) {
	short := make([]byte, 10)
	assert.NotPanics(t, func() {
		PutBuf(nil)
		PutBuf(&short)
	})
}

func TestReplyBuf_ComesBackEmpty(t *testing.T) {
	b := GetReplyBuf()
	b.WriteString("SUCCESS: pid=4242\r\n")
	s := b.String()
	PutReplyBuf(b)

	assert.Equal(t, "SUCCESS: pid=4242\r\n", s)
	assert.Zero(t, GetReplyBuf().Len())
}

func TestPutReplyBuf_DropsOversized(t *testing.T) {
	assert.NotPanics(t, func() {
		PutReplyBuf(nil)
		PutReplyBuf(bytes.NewBuffer(make([]byte, 0, maxPooledReply+1)))
	})
}
