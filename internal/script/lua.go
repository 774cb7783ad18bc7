// Package script runs sandboxed Lua code on behalf of function nodes and
// Lua-keyed sequencing nodes
package script

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/util"
)

type (
	// LuaEnv provides a Lua script execution environment with state pooling.
	// Compiled chunks are cached by source and argument names
	LuaEnv struct {
		statePool chan *lua.State
		compiled  *util.Cache[compileKey, *Compiled]
	}

	compileKey struct {
		src  string
		args string
	}

	// Compiled is a Lua chunk ready to be called with its named arguments
	Compiled struct {
		bytecode []byte
		argNames []string
	}

	// Func is a Go function exposed to scripts. Arguments and the result
	// are converted with the same rules as other values
	Func func(args []any) any
)

const (
	luaStatePoolSize    = 10
	luaCompileCacheSize = 256
	luaGlobalTableIndex = -2
	luaTableIndex       = -3
	luaArgLocalTemplate = "local %s = select(%d, ...)"
	luaGlobalTableName  = "_G"
	luaSeparator        = "\n"
	luaChunkName        = "chunk"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaEnv creates a new Lua script execution environment with a state pool
// for efficient script reuse
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		statePool: make(chan *lua.State, luaStatePoolSize),
		compiled: util.NewCache[compileKey, *Compiled](
			luaCompileCacheSize,
		),
	}
}

// Compile wraps the source so each name in argNames is bound to the
// positional argument of the same index, then compiles it to bytecode
func (e *LuaEnv) Compile(src string, argNames ...string) (*Compiled, error) {
	key := compileKey{src: src, args: strings.Join(argNames, ",")}
	return e.compiled.Get(key, func() (*Compiled, error) {
		return e.compile(src, argNames)
	})
}

func (e *LuaEnv) compile(src string, argNames []string) (*Compiled, error) {
	L := lua.NewState()
	e.setupSandbox(L)

	if err := lua.LoadString(L, wrapSource(src, argNames)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	return &Compiled{
		bytecode: buf.Bytes(),
		argNames: append([]string(nil), argNames...),
	}, nil
}

// CompileExpression compiles a single expression whose value is returned
func (e *LuaEnv) CompileExpression(
	expr string, argNames ...string,
) (*Compiled, error) {
	return e.Compile("return "+expr, argNames...)
}

// Call runs a compiled chunk with positional arguments matching its
// argument names and returns its first result converted to Go
func (e *LuaEnv) Call(c *Compiled, args ...any) (any, error) {
	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	err := L.Load(bytes.NewReader(c.bytecode), luaChunkName, "b")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	for i := range c.argNames {
		if i < len(args) {
			goToLua(L, args[i])
			continue
		}
		L.PushNil()
	}

	if err := L.ProtectedCall(len(c.argNames), 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	res := luaToGo(L, -1)
	L.Pop(1)
	return res, nil
}

// ArgNames returns the argument names the chunk was compiled with
func (c *Compiled) ArgNames() []string {
	return c.argNames
}

func wrapSource(script string, argNames []string) string {
	argLocals := make([]string, len(argNames))
	for i, name := range argNames {
		argLocals[i] = fmt.Sprintf(luaArgLocalTemplate, name, i+1)
	}
	return strings.Join([]string{
		strings.Join(argLocals, luaSeparator), script,
	}, luaSeparator)
}

func (e *LuaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case e.statePool <- L:
	default:
	}
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case []byte:
		L.PushString(string(v))
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case api.Msg:
		pushLuaMap(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case map[string]string:
		L.CreateTable(0, len(v))
		for k, s := range v {
			L.PushString(k)
			L.PushString(s)
			L.SetTable(luaTableIndex)
		}
	case api.Parts:
		pushLuaMap(L, partsToMap(&v))
	case *api.Parts:
		pushLuaMap(L, partsToMap(v))
	case Func:
		pushLuaFunc(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaTableIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		goToLua(L, val)
		L.SetTable(luaTableIndex)
	}
}

func pushLuaFunc(L *lua.State, fn Func) {
	L.PushGoFunction(func(L *lua.State) int {
		n := L.Top()
		args := make([]any, n)
		for i := 1; i <= n; i++ {
			args[i-1] = luaToGo(L, i)
		}
		goToLua(L, fn(args))
		return 1
	})
}

func partsToMap(p *api.Parts) map[string]any {
	res := map[string]any{
		"id":    p.ID,
		"index": p.Index,
	}
	if p.Count > 0 {
		res["count"] = p.Count
	}
	if p.Type != "" {
		res["type"] = p.Type
	}
	if p.Ch != "" {
		res["ch"] = p.Ch
	}
	if p.Key != "" {
		res["key"] = p.Key
	}
	if p.Len > 0 {
		res["len"] = p.Len
	}
	if p.Parts != nil {
		res["parts"] = partsToMap(p.Parts)
	}
	return res
}

func luaNumberToGo(L *lua.State, index int) any {
	num, _ := L.ToNumber(index)
	if num == float64(int(num)) {
		return int(num)
	}
	return num
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		return luaNumberToGo(L, index)
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToAny(L, index)
	default:
		return nil
	}
}

// luaTableToAny converts tables whose keys are all positive integers into
// slices, keeping nil holes, and every other table into a map
func luaTableToAny(L *lua.State, index int) any {
	abs := L.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0

	L.PushNil()
	for L.Next(abs) {
		count++
		if isArray {
			if n, ok := arrayKey(L); ok {
				maxIndex = max(maxIndex, n)
			} else {
				isArray = false
			}
		}
		L.Pop(1)
	}

	if isArray && count > 0 {
		arr := make([]any, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			L.RawGetInt(abs, i)
			arr[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return arr
	}

	result := map[string]any{}
	L.PushNil()
	for L.Next(abs) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		result[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return result
}

func arrayKey(L *lua.State) (int, bool) {
	if L.TypeOf(-2) != lua.TypeNumber {
		return 0, false
	}
	num, _ := L.ToNumber(-2)
	n := int(num)
	if float64(n) != num || n < 1 {
		return 0, false
	}
	return n, true
}
