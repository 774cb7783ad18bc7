// Package nodes provides the node types bundled with the runtime: message
// sources and sinks, error and status watchers, link indirection, Lua
// functions, file and websocket outputs, and the sequencing nodes delay,
// sort, batch and split
package nodes
