package protocol

import (
	"reflect"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	rw "github.com/socketio/socket.io-sub001/internal/readwriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const placeholderKey = "_placeholder"

// JSONParser is the default parser. Binary leaves of the data are sent as
// separate binary messages after the text packet.
type JSONParser struct{}

func (JSONParser) NewEncoder() Encoder { return jsonEncoder{} }
func (JSONParser) NewDecoder() Decoder { return &jsonDecoder{} }

type jsonEncoder struct{}

func (jsonEncoder) Encode(packet Packet) ([]interface{}, error) {
	var buffers [][]byte
	data := deconstruct(packet.Data, &buffers)
	if len(buffers) > 0 {
		packet.Type = packet.Type.Binary()
		packet.Attachments = len(buffers)
	}

	var buf strings.Builder
	w := rw.NewWriter(&buf)
	w.Byte(packet.Type.Byte()).OnErrF(ErrEncode, packet.Type)
	if packet.Type.IsBinary() {
		w.Int(packet.Attachments).OnErrF(ErrEncode, packet.Type)
		w.Byte('-').OnErrF(ErrEncode, packet.Type)
	}
	if packet.Namespace != "" && packet.Namespace != DefaultNamespace {
		w.String(packet.Namespace).OnErrF(ErrEncode, packet.Type)
		w.Byte(',').OnErrF(ErrEncode, packet.Type)
	}
	if packet.ID != nil {
		w.String(strconv.FormatUint(*packet.ID, 10)).OnErrF(ErrEncode, packet.Type)
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, ErrEncode.F(packet.Type, ErrPayloadMarshal.F(err))
		}
		w.Bytes(b).OnErrF(ErrEncode, packet.Type)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}

	out := make([]interface{}, 0, 1+len(buffers))
	out = append(out, buf.String())
	for _, b := range buffers {
		out = append(out, b)
	}
	return out, nil
}

// deconstruct replaces every []byte in data with a placeholder holding its
// index in buffers. Slices, arrays, maps, structs and pointers are walked;
// the parts that hold a []byte are copied into generic values, the rest is
// kept as is. data itself is not changed.
func deconstruct(data interface{}, buffers *[][]byte) interface{} {
	if val, ok := deconstructValue(reflect.ValueOf(data), buffers); ok {
		return val
	}
	return data
}

var marshalerType = reflect.TypeOf((*interface{ MarshalJSON() ([]byte, error) })(nil)).Elem()

// deconstructValue reports false when v holds no []byte, its result is then
// unused.
func deconstructValue(v reflect.Value, buffers *[][]byte) (interface{}, bool) {
	if !v.IsValid() || v.Type().Implements(marshalerType) {
		return nil, false
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil, false
		}
		return deconstructValue(v.Elem(), buffers)

	case reflect.Slice:
		if v.IsNil() {
			return nil, false
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			placeholder := map[string]interface{}{placeholderKey: true, "num": len(*buffers)}
			*buffers = append(*buffers, v.Bytes())
			return placeholder, true
		}
		return deconstructList(v, buffers)

	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false // an array of numbers on the wire
		}
		return deconstructList(v, buffers)

	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		obj, found := make(map[string]interface{}, v.Len()), false
		iter := v.MapRange()
		for iter.Next() {
			val, ok := deconstructValue(iter.Value(), buffers)
			if !ok {
				val = iter.Value().Interface()
			}
			obj[iter.Key().String()] = val
			found = found || ok
		}
		return obj, found

	case reflect.Struct:
		obj := make(map[string]interface{}, v.NumField())
		return obj, deconstructFields(v, obj, buffers)
	}
	return nil, false
}

func deconstructList(v reflect.Value, buffers *[][]byte) (interface{}, bool) {
	list, found := make([]interface{}, v.Len()), false
	for i := range list {
		val, ok := deconstructValue(v.Index(i), buffers)
		if !ok {
			val = v.Index(i).Interface()
		}
		list[i] = val
		found = found || ok
	}
	return list, found
}

// deconstructFields writes the exported fields of v to obj under their json
// names. Embedded structs without a name are flattened.
func deconstructFields(v reflect.Value, obj map[string]interface{}, buffers *[][]byte) (found bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f, fv := t.Field(i), v.Field(i)

		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts := tag, ""
		if j := strings.IndexByte(tag, ','); j >= 0 {
			name, opts = tag[:j], tag[j+1:]
		}

		if f.Anonymous && name == "" {
			ev := fv
			if ev.Kind() == reflect.Ptr {
				if ev.IsNil() {
					continue
				}
				ev = ev.Elem()
			}
			if ev.Kind() == reflect.Struct {
				found = deconstructFields(ev, obj, buffers) || found
				continue
			}
		}
		if f.PkgPath != "" || !fv.CanInterface() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if strings.Contains(","+opts+",", ",omitempty,") && isEmptyValue(fv) {
			continue
		}

		val, ok := deconstructValue(fv, buffers)
		if !ok {
			val = fv.Interface()
		}
		obj[name] = val
		found = found || ok
	}
	return found
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return v.IsZero()
}

type jsonDecoder struct {
	pending *Packet
	buffers [][]byte
}

func (dec *jsonDecoder) Reset() {
	dec.pending = nil
	dec.buffers = nil
}

func (dec *jsonDecoder) Add(msg interface{}) (*Packet, error) {
	switch v := msg.(type) {
	case string:
		if dec.pending != nil {
			dec.Reset()
			return nil, ErrDecode.F(ErrUnexpectedText)
		}
		packet, err := decodeString(v)
		if err != nil {
			return nil, ErrDecode.F(err)
		}
		if packet.Type.IsBinary() {
			dec.pending = &packet
			return nil, nil
		}
		return &packet, nil

	case []byte:
		if dec.pending == nil {
			return nil, ErrDecode.F(ErrUnexpectedBinary)
		}
		dec.buffers = append(dec.buffers, v)
		if len(dec.buffers) < dec.pending.Attachments {
			return nil, nil
		}

		packet, buffers := dec.pending, dec.buffers
		dec.Reset()

		data, err := reconstruct(packet.Data, buffers)
		if err != nil {
			return nil, ErrDecode.F(err)
		}
		packet.Data = data
		return packet, nil
	}
	return nil, ErrDecode.F(ErrUnknownInput.F(msg))
}

func decodeString(s string) (Packet, error) {
	if len(s) == 0 {
		return Packet{}, ErrEmptyPacket
	}

	if s[0] < '0' || s[0] > '9' || !PacketType(s[0]-'0').Valid() {
		return Packet{}, ErrInvalidPacketType.F(s[0])
	}
	packet := Packet{Type: PacketType(s[0] - '0'), Namespace: DefaultNamespace}
	i := 1

	if packet.Type.IsBinary() {
		j := strings.IndexByte(s[i:], '-')
		if j < 0 {
			return Packet{}, ErrIllegalAttachments
		}
		n, err := strconv.Atoi(s[i : i+j])
		if err != nil || n <= 0 {
			return Packet{}, ErrIllegalAttachments
		}
		packet.Attachments = n
		i += j + 1
	}

	if i < len(s) && s[i] == '/' {
		j := strings.IndexByte(s[i:], ',')
		if j < 0 {
			packet.Namespace, i = s[i:], len(s)
		} else {
			packet.Namespace, i = s[i:i+j], i+j+1
		}
	}

	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.ParseUint(s[start:i], 10, 64)
		if err != nil {
			return Packet{}, ErrInvalidAckID.F(err)
		}
		packet.ID = &id
	}

	if i < len(s) {
		var data interface{}
		if err := json.UnmarshalFromString(s[i:], &data); err != nil {
			return Packet{}, ErrPayloadUnmarshal.F(err)
		}
		packet.Data = data
	}

	if !packet.Valid() {
		return Packet{}, ErrInvalidPayload.F(packet.Type)
	}
	return packet, nil
}

// reconstruct puts the buffers back where deconstruct left placeholders.
func reconstruct(data interface{}, buffers [][]byte) (interface{}, error) {
	switch v := data.(type) {
	case map[string]interface{}:
		if isPlaceholder, _ := v[placeholderKey].(bool); isPlaceholder {
			num, ok := v["num"].(float64)
			idx := int(num)
			if !ok || float64(idx) != num || idx < 0 || idx >= len(buffers) {
				return nil, ErrIllegalAttachments
			}
			return buffers[idx], nil
		}
		for k, val := range v {
			rebuilt, err := reconstruct(val, buffers)
			if err != nil {
				return nil, err
			}
			v[k] = rebuilt
		}
	case []interface{}:
		for i, val := range v {
			rebuilt, err := reconstruct(val, buffers)
			if err != nil {
				return nil, err
			}
			v[i] = rebuilt
		}
	}
	return data, nil
}
