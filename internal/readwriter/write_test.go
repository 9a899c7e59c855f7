package readwriter

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	erro "github.com/socketio/socket.io-sub001/internal/errors"
	"github.com/stretchr/testify/assert"
)

const errTestWrite erro.String = "test write [%s]: %w"

type failWriter struct{ after int }

func (fw *failWriter) Write(p []byte) (int, error) {
	if fw.after <= 0 {
		return 0, errors.New("boom")
	}
	fw.after--
	return len(p), nil
}

func TestWriterMethods(t *testing.T) {
	buf := new(bytes.Buffer)
	wtr := NewWriter(buf)

	wtr.Byte('4').OnErrF(errTestWrite, "byte")
	wtr.String("hello").OnErrF(errTestWrite, "string")
	wtr.Int(12).OnErrF(errTestWrite, "int")
	wtr.Bytes([]byte{':'}).OnErrF(errTestWrite, "bytes")
	wtr.Base64(base64.StdEncoding, []byte{1, 2, 3, 4}).OnErrF(errTestWrite, "base64")

	assert.NoError(t, wtr.Err())
	assert.Equal(t, "4hello12:AQIDBA==", buf.String())
}

func TestWriterLatchesError(t *testing.T) {
	wtr := NewWriter(&failWriter{})

	wtr.String("abc").OnErrF(errTestWrite, "string")
	err := wtr.Err() // the flush fails
	assert.Error(t, err)

	wtr.String("more").OnErrF(errTestWrite, "string")
	assert.Equal(t, err, wtr.Err())

	n, werr := wtr.Write([]byte("x"))
	assert.Zero(t, n)
	assert.Equal(t, err, werr)
}
