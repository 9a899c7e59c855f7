package readwriter

import (
	"encoding/base64"
	"strconv"

	erro "github.com/socketio/socket.io-sub001/internal/errors"
)

func (wtr *Writer) Bytes(p []byte) wtrErr {
	if wtr.err != nil {
		return wtr
	}

	_, wtr.err = wtr.w.Write(p)
	return onWtrErr{wtr}
}

func (wtr *Writer) Byte(p byte) wtrErr {
	if wtr.err != nil {
		return wtr
	}

	wtr.err = wtr.w.WriteByte(p)
	return onWtrErr{wtr}
}

func (wtr *Writer) String(str string) wtrErr {
	if wtr.err != nil {
		return wtr
	}

	_, wtr.err = wtr.w.WriteString(str)
	return onWtrErr{wtr}
}

func (wtr *Writer) Int(n int) wtrErr { return wtr.String(strconv.Itoa(n)) }

func (wtr *Writer) Base64(enc *base64.Encoding, p []byte) wtrErr {
	if wtr.err != nil {
		return wtr
	}

	b64 := base64.NewEncoder(enc, wtr.w)
	if _, wtr.err = b64.Write(p); wtr.err == nil {
		wtr.err = b64.Close()
	}
	return onWtrErr{wtr}
}

type onWtrErr struct{ *Writer }

func (e onWtrErr) OnErrF(err erro.String, v ...interface{}) {
	if e.err != nil {
		e.err = err.F(append(v, e.err)...)
	}
}
