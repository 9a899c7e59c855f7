// Package readwriter has an error latching writer: once a write fails every
// following write is skipped and Err reports the first failure.
package readwriter

import (
	"bufio"
	"io"

	erro "github.com/socketio/socket.io-sub001/internal/errors"
)

type wtrErr interface {
	OnErrF(erro.String, ...interface{})
}

type Writer struct {
	w   *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	if bw, ok := w.(*bufio.Writer); ok {
		return &Writer{w: bw}
	}
	return &Writer{w: bufio.NewWriter(w)}
}

// Err flushes the buffered data when no error has been seen yet.
func (wtr *Writer) Err() error {
	if wtr.err == nil {
		wtr.err = wtr.w.Flush()
	}
	return wtr.err
}

func (wtr *Writer) Write(p []byte) (n int, err error) {
	if wtr.err != nil {
		return 0, wtr.err
	}
	n, wtr.err = wtr.w.Write(p)
	return n, wtr.err
}

func (wtr *Writer) OnErrF(erro.String, ...interface{}) {}
