// Package engine runs deployed flows
//
// All node logic executes on a single runtime loop. Messages travel between
// nodes as posted work items, timers are keyed tasks on the same loop, and
// deploys swap the whole node graph atomically between two work items
package engine
