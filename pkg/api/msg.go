package api

import (
	"bytes"
	"reflect"
)

type (
	// Msg is the envelope flowing between nodes. Any key is permitted; the
	// runtime only interprets the well-known keys below
	Msg map[string]any

	// Output addresses messages to output ports: position i holds the
	// messages sent on port i. A nil entry sends nothing on that port
	Output [][]Msg

	cloner struct {
		seen map[cloneKey]reflect.Value
	}

	cloneKey struct {
		typ reflect.Type
		ptr uintptr
		len int
	}
)

const (
	KeyMsgID      = "_msgid"
	KeyPayload    = "payload"
	KeyTopic      = "topic"
	KeyParts      = "parts"
	KeyError      = "error"
	KeyReset      = "reset"
	KeyFlush      = "flush"
	KeyRate       = "rate"
	KeyDelay      = "delay"
	KeyTarget     = "target"
	KeyLinkSource = "_linkSource"
)

// NewMsg creates a message carrying the given payload and a fresh id
func NewMsg(payload any) Msg {
	return Msg{
		KeyMsgID:   NewID(),
		KeyPayload: payload,
	}
}

// ID returns the message correlation identifier, or "" if none is set
func (m Msg) ID() string {
	id, _ := m[KeyMsgID].(string)
	return id
}

// EnsureID mints an identifier if the message does not carry one yet
func (m Msg) EnsureID() string {
	if id := m.ID(); id != "" {
		return id
	}
	return m.NewID()
}

// NewID replaces the identifier, marking the message as a new logical
// message derived from its predecessor
func (m Msg) NewID() string {
	id := NewID()
	m[KeyMsgID] = id
	return id
}

// Payload returns the payload value
func (m Msg) Payload() any {
	return m[KeyPayload]
}

// Topic returns the topic, or "" when absent or not a string
func (m Msg) Topic() string {
	t, _ := m[KeyTopic].(string)
	return t
}

// Has reports whether the key is present, even with a nil value
func (m Msg) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Clone performs a structural deep copy. Nested maps and slices are copied
// with shared references and cycles reproduced in the copy. Byte slices
// are copied by value; functions, channels and other opaque values are
// shared
func (m Msg) Clone() Msg {
	if m == nil {
		return nil
	}
	c := &cloner{seen: map[cloneKey]reflect.Value{}}
	return c.value(m).(Msg)
}

// CloneValue deep copies an arbitrary value using the same rules as Clone
func CloneValue(v any) any {
	c := &cloner{seen: map[cloneKey]reflect.Value{}}
	return c.value(v)
}

func (c *cloner) value(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int64, int32, float64, float32, uint,
		uint64:
		return v
	case []byte:
		if t == nil {
			return t
		}
		return bytes.Clone(t)
	case Parts:
		return t.Clone()
	case *Parts:
		if t == nil {
			return t
		}
		res := t.Clone()
		return &res
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return c.collection(rv).Interface()
	default:
		return v
	}
}

func (c *cloner) collection(rv reflect.Value) reflect.Value {
	if rv.IsNil() {
		return rv
	}
	key := cloneKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}
	if prev, ok := c.seen[key]; ok {
		return prev
	}

	typ := rv.Type()
	if rv.Kind() == reflect.Map {
		res := reflect.MakeMapWithSize(typ, rv.Len())
		c.seen[key] = res
		iter := rv.MapRange()
		for iter.Next() {
			res.SetMapIndex(iter.Key(), c.element(iter.Value(), typ.Elem()))
		}
		return res
	}

	res := reflect.MakeSlice(typ, rv.Len(), rv.Len())
	c.seen[key] = res
	for i := range rv.Len() {
		res.Index(i).Set(c.element(rv.Index(i), typ.Elem()))
	}
	return res
}

func (c *cloner) element(v reflect.Value, typ reflect.Type) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ)
		}
		v = v.Elem()
	}
	if !v.CanInterface() {
		return v
	}
	res := reflect.ValueOf(c.value(v.Interface()))
	if !res.IsValid() {
		return reflect.Zero(typ)
	}
	if !res.Type().AssignableTo(typ) && res.Type().ConvertibleTo(typ) {
		return res.Convert(typ)
	}
	return res
}
