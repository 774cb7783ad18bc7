// Package util provides small generic data structures used by the runtime:
// a hierarchical path index for keyed timers, a set type and an LRU cache
package util
