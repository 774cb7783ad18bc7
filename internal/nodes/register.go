package nodes

import (
	"errors"
	"maps"
	"slices"

	"github.com/gorilla/websocket"
	"gocloud.dev/blob"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/script"
)

type (
	// Options carries the shared resources some node types depend on
	Options struct {
		Lua    *script.LuaEnv
		Files  *blob.Bucket
		Dialer *websocket.Dialer
	}
)

const (
	TypeInject       = "inject"
	TypeDebug        = "debug"
	TypeFunction     = "function"
	TypeCatch        = "catch"
	TypeStatus       = "status"
	TypeComplete     = "complete"
	TypeLinkIn       = "link in"
	TypeLinkOut      = "link out"
	TypeLinkCall     = "link call"
	TypeDelay        = "delay"
	TypeSort         = "sort"
	TypeBatch        = "batch"
	TypeSplit        = "split"
	TypeFile         = "file"
	TypeFileIn       = "file in"
	TypeWebSocketOut = "websocket out"
)

var (
	ErrFilesNotConfigured = errors.New("file storage is not configured")
	ErrInvalidConfig      = errors.New("invalid node configuration")
)

// Register adds every bundled node type to reg
func Register(reg *engine.Registry, opts Options) error {
	if opts.Lua == nil {
		opts.Lua = script.NewLuaEnv()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	types := map[string]engine.Factory{
		TypeInject:       newInject,
		TypeDebug:        newDebug,
		TypeFunction:     opts.newFunction,
		TypeCatch:        newCatch,
		TypeStatus:       newStatus,
		TypeComplete:     newComplete,
		TypeLinkIn:       newLinkIn,
		TypeLinkOut:      newLinkOut,
		TypeLinkCall:     newLinkCall,
		TypeDelay:        newDelay,
		TypeSort:         opts.newSort,
		TypeBatch:        newBatch,
		TypeSplit:        newSplit,
		TypeFile:         opts.newFile,
		TypeFileIn:       opts.newFileIn,
		TypeWebSocketOut: opts.newWebSocketOut,
	}
	for _, typ := range slices.Sorted(maps.Keys(types)) {
		if err := reg.Register(typ, types[typ]); err != nil {
			return err
		}
	}
	return nil
}

// Registrar binds opts to Register
func Registrar(opts Options) func(*engine.Registry) error {
	return func(reg *engine.Registry) error {
		return Register(reg, opts)
	}
}
