// Package controller drives crash-consistency runs. Each epoch spawns a
// worker, verifies the state it recovered against the expected model, issues
// random requests and kills the worker at a random moment while a request
// may still be in flight.
package controller
