// Package api defines the data types shared by the runtime, its nodes and
// its HTTP surface
//
// This package contains the message envelope and its sequence descriptor,
// the flow document format, deploy requests and responses, and the runtime
// events streamed to clients
package api
