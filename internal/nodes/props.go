package nodes

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kode4food/wireflow/pkg/api"
)

const msgPrefix = "msg."

var indexBrackets = strings.NewReplacer("[", ".", "]", "")

// getProperty reads a property path such as "payload.items[0].name" from
// msg. Plain paths are walked directly; anything else is evaluated as a
// gjson path
func getProperty(msg api.Msg, path string) (any, bool) {
	segs := pathSegments(path)
	if len(segs) == 0 {
		return nil, false
	}
	v, ok := msg[segs[0]]
	if !ok || len(segs) == 1 {
		return v, ok
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(path, msgPrefix), segs[0])
	return getPath(v, strings.TrimPrefix(rest, "."))
}

// getPath evaluates path below v. An empty path yields v itself
func getPath(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	if res, ok := walk(v, pathSegments(path)); ok {
		return res, true
	}
	data, err := api.EncodeValue(v)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(data, gjsonPath(path))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

func walk(v any, segs []string) (any, bool) {
	for _, seg := range segs {
		next, ok := child(v, seg)
		if !ok {
			return nil, false
		}
		v = next
	}
	return v, true
}

// gjsonPath rewrites index brackets into gjson's dotted form
func gjsonPath(path string) string {
	return indexBrackets.Replace(path)
}

// setProperty assigns value at path, creating intermediate objects. It
// reports false when the path crosses a value that cannot hold keys
func setProperty(msg api.Msg, path string, value any) bool {
	segs := pathSegments(path)
	if len(segs) == 0 {
		return false
	}
	var cur any = map[string]any(msg)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := child(cur, seg)
		if !ok || next == nil {
			next = map[string]any{}
			if !assign(cur, seg, next) {
				return false
			}
		}
		cur = next
	}
	return assign(cur, segs[len(segs)-1], value)
}

func child(v any, seg string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		res, ok := t[seg]
		return res, ok
	case api.Msg:
		res, ok := t[seg]
		return res, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	default:
		return nil, false
	}
}

func assign(v any, seg string, value any) bool {
	switch t := v.(type) {
	case map[string]any:
		t[seg] = value
	case api.Msg:
		t[seg] = value
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(t) {
			return false
		}
		t[i] = value
	default:
		return false
	}
	return true
}

// pathSegments splits "msg.a[0].b" into ["a", "0", "b"]
func pathSegments(path string) []string {
	path = strings.TrimPrefix(strings.TrimSpace(path), msgPrefix)
	path = strings.NewReplacer("[", ".", "]", "", "\"", "", "'", "").
		Replace(path)
	var res []string
	for seg := range strings.SplitSeq(path, ".") {
		if seg != "" {
			res = append(res, seg)
		}
	}
	return res
}
