package api

type (
	// Parts marks a message as member Index of a sequence of Count messages
	// sharing ID. Count is zero while the sequence length is unknown
	Parts struct {
		Parts *Parts `json:"parts,omitempty"`
		ID    string `json:"id"`
		Type  string `json:"type,omitempty"`
		Ch    string `json:"ch,omitempty"`
		Key   string `json:"key,omitempty"`
		Index int    `json:"index"`
		Count int    `json:"count,omitempty"`
		Len   int    `json:"len,omitempty"`
	}
)

// Clone returns a copy of the descriptor including any nested parent parts
func (p Parts) Clone() Parts {
	res := p
	if p.Parts != nil {
		parent := p.Parts.Clone()
		res.Parts = &parent
	}
	return res
}

// Parts returns the sequence descriptor carried by the message. Both typed
// descriptors and descriptors decoded from JSON are recognized
func (m Msg) Parts() (*Parts, bool) {
	switch p := m[KeyParts].(type) {
	case Parts:
		return &p, true
	case *Parts:
		if p != nil {
			return p, true
		}
	case map[string]any:
		return partsFromMap(p), true
	}
	return nil, false
}

// SetParts attaches a sequence descriptor to the message
func (m Msg) SetParts(p Parts) {
	m[KeyParts] = p
}

// DeleteParts removes the sequence descriptor
func (m Msg) DeleteParts() {
	delete(m, KeyParts)
}

func partsFromMap(m map[string]any) *Parts {
	res := &Parts{
		ID:    stringOf(m["id"]),
		Type:  stringOf(m["type"]),
		Ch:    stringOf(m["ch"]),
		Key:   stringOf(m["key"]),
		Index: intOf(m["index"]),
		Count: intOf(m["count"]),
		Len:   intOf(m["len"]),
	}
	if parent, ok := m["parts"].(map[string]any); ok {
		res.Parts = partsFromMap(parent)
	}
	return res
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	case int:
		return formatNumber(float64(t))
	default:
		return ""
	}
}

func intOf(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
