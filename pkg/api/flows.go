package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"maps"
	"slices"
)

type (
	// NodeConfig is one entry of a flow document. The common fields are
	// decoded eagerly; type-specific settings stay in Raw until the node's
	// factory decodes them
	NodeConfig struct {
		ID       NodeID          `json:"id"`
		Type     string          `json:"type"`
		Z        FlowID          `json:"z,omitempty"`
		Name     string          `json:"name,omitempty"`
		Wires    [][]NodeID      `json:"wires,omitempty"`
		Env      []EnvVar        `json:"env,omitempty"`
		Disabled bool            `json:"d,omitempty"`
		Raw      json.RawMessage `json:"-"`
	}

	// EnvVar is a name/value pair attached to a tab, subflow template or
	// subflow instance
	EnvVar struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Type  string `json:"type,omitempty"`
	}

	// FlowSet is a complete flow document
	FlowSet []*NodeConfig

	nodeConfigFields NodeConfig
)

const (
	TypeTab     = "tab"
	TypeSubflow = "subflow"

	// SubflowPrefix prefixes the type of every subflow instance node
	SubflowPrefix = "subflow:"
)

var ErrNodeIDRequired = errors.New("node id is required")

// positional keys do not change behavior and are ignored by comparisons
var layoutKeys = [...]string{"x", "y", "w", "h", "wires"}

// UnmarshalJSON decodes the common fields and retains the raw document
func (c *NodeConfig) UnmarshalJSON(data []byte) error {
	var f nodeConfigFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.ID == "" {
		return ErrNodeIDRequired
	}
	*c = NodeConfig(f)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON merges the common fields back over the raw document
func (c *NodeConfig) MarshalJSON() ([]byte, error) {
	doc, err := c.document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Decode unmarshals the raw document into a type-specific config struct
func (c *NodeConfig) Decode(v any) error {
	if len(c.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(c.Raw, v)
}

// Bool reads a boolean field from the raw document, used for container
// flags such as a tab's "disabled"
func (c *NodeConfig) Bool(name string) bool {
	var doc map[string]any
	if c.Decode(&doc) != nil {
		return false
	}
	b, _ := doc[name].(bool)
	return b
}

// Fingerprint returns a canonical encoding of the node's behavior-relevant
// settings: everything except wires and editor layout
func (c *NodeConfig) Fingerprint() string {
	doc, err := c.document()
	if err != nil {
		return string(c.Raw)
	}
	for _, k := range layoutKeys {
		delete(doc, k)
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// WiresEqual reports whether both configs route to the same targets
func (c *NodeConfig) WiresEqual(other *NodeConfig) bool {
	if len(c.Wires) != len(other.Wires) {
		return false
	}
	for i, port := range c.Wires {
		if len(port) != len(other.Wires[i]) {
			return false
		}
		for j, id := range port {
			if other.Wires[i][j] != id {
				return false
			}
		}
	}
	return true
}

func (c *NodeConfig) document() (map[string]any, error) {
	doc := map[string]any{}
	if len(c.Raw) > 0 {
		if err := json.Unmarshal(c.Raw, &doc); err != nil {
			return nil, err
		}
	}
	doc["id"] = c.ID
	doc["type"] = c.Type
	setOrDelete(doc, "z", c.Z, c.Z == "")
	setOrDelete(doc, "name", c.Name, c.Name == "")
	setOrDelete(doc, "wires", c.Wires, c.Wires == nil)
	setOrDelete(doc, "env", c.Env, len(c.Env) == 0)
	setOrDelete(doc, "d", c.Disabled, !c.Disabled)
	return doc, nil
}

// ByID indexes the document by node id
func (s FlowSet) ByID() map[NodeID]*NodeConfig {
	res := make(map[NodeID]*NodeConfig, len(s))
	for _, c := range s {
		res[c.ID] = c
	}
	return res
}

// Revision returns a content hash identifying this exact document
func (s FlowSet) Revision() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Clone returns a copy whose entries may be modified independently
func (s FlowSet) Clone() FlowSet {
	res := make(FlowSet, len(s))
	for i, c := range s {
		cp := *c
		if c.Wires != nil {
			cp.Wires = make([][]NodeID, len(c.Wires))
			for j, port := range c.Wires {
				cp.Wires[j] = slices.Clone(port)
			}
		}
		cp.Env = append([]EnvVar(nil), c.Env...)
		cp.Raw = append(json.RawMessage(nil), c.Raw...)
		res[i] = &cp
	}
	return res
}

func setOrDelete(doc map[string]any, key string, v any, empty bool) {
	if empty {
		delete(doc, key)
		return
	}
	doc[key] = v
}

// EnvMap flattens a variable list into a lookup table
func EnvMap(vars []EnvVar) map[string]string {
	res := make(map[string]string, len(vars))
	for _, v := range vars {
		res[v.Name] = v.Value
	}
	return maps.Clone(res)
}
