// Package websocket streams session state snapshots to UI clients.
//
// The Hub is an actor: a single goroutine owns the client set and receives
// commands over a channel. Each connection gets its own writer goroutine so a
// slow client never blocks the others; clients whose buffer fills are dropped.
package websocket
