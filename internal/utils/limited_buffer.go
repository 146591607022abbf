package utils

import (
	"bytes"
)

// LimitedBuffer keeps the first Limit bytes written to it and silently
// discards the rest, recording that it did so.
type LimitedBuffer struct {
	Buf       *bytes.Buffer
	Limit     int
	Written   int
	Truncated bool
}

func (l *LimitedBuffer) Write(p []byte) (n int, err error) {
	if l.Written >= l.Limit {
		if len(p) > 0 {
			l.Truncated = true
		}
		return len(p), nil
	}
	remaining := l.Limit - l.Written
	if len(p) > remaining {
		l.Buf.Write(p[:remaining])
		l.Written += remaining
		l.Truncated = true
		return len(p), nil
	}
	n, err = l.Buf.Write(p)
	l.Written += n
	return n, err
}
