package protocol

import (
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Duration is a time.Duration that travels as whole milliseconds in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*d = Duration(time.Duration(i) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() (b []byte, err error) {
	return strconv.AppendInt(nil, int64(time.Duration(d)/time.Millisecond), 10), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
