package api

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
)

type bufferJSON struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

const bufferType = "Buffer"

var ErrCyclicMsg = errors.New("message contains a reference cycle")

// EncodeMsg renders the message in its JSON wire shape. Byte slices become
// {"type":"Buffer","data":[...]} objects
func EncodeMsg(m Msg) ([]byte, error) {
	v, err := toWire(map[string]any(m), map[uintptr]bool{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// EncodeValue renders any message value in the same JSON wire shape
func EncodeValue(v any) ([]byte, error) {
	w, err := toWire(v, map[uintptr]bool{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeMsg parses a JSON wire message, restoring Buffer objects to byte
// slices
func DecodeMsg(data []byte) (Msg, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return Msg(fromWire(m).(map[string]any)), nil
}

func toWire(v any, path map[uintptr]bool) (any, error) {
	switch t := v.(type) {
	case []byte:
		data := make([]int, len(t))
		for i, b := range t {
			data[i] = int(b)
		}
		return bufferJSON{Type: bufferType, Data: data}, nil
	case Msg:
		return toWire(map[string]any(t), path)
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if path[ptr] {
			return nil, ErrCyclicMsg
		}
		path[ptr] = true
		defer delete(path, ptr)
		res := make(map[string]any, len(t))
		for k, e := range t {
			w, err := toWire(e, path)
			if err != nil {
				return nil, err
			}
			res[k] = w
		}
		return res, nil
	case []any:
		if len(t) > 0 {
			ptr := reflect.ValueOf(t).Pointer()
			if path[ptr] {
				return nil, ErrCyclicMsg
			}
			path[ptr] = true
			defer delete(path, ptr)
		}
		res := make([]any, len(t))
		for i, e := range t {
			w, err := toWire(e, path)
			if err != nil {
				return nil, err
			}
			res[i] = w
		}
		return res, nil
	default:
		return v, nil
	}
}

func fromWire(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if buf, ok := asBuffer(t); ok {
			return buf
		}
		for k, e := range t {
			t[k] = fromWire(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromWire(e)
		}
		return t
	default:
		return v
	}
}

func asBuffer(m map[string]any) ([]byte, bool) {
	if len(m) != 2 || m["type"] != bufferType {
		return nil, false
	}
	data, ok := m["data"].([]any)
	if !ok {
		return nil, false
	}
	res := make([]byte, len(data))
	for i, d := range data {
		n, ok := d.(float64)
		if !ok || n < 0 || n > 255 {
			return nil, false
		}
		res[i] = byte(n)
	}
	return res, true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
