// Package shutdown runs registered cleanup hooks when the process is
// asked to stop.
//
// Hooks run in reverse registration order under a shared deadline, so the
// HTTP server drains before the store it depends on is closed.
package shutdown
