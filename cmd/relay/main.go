// Command relay plans trips, game turns and careers by handing a request
// through a pipeline of specialized agents.
//
// Usage:
//
//	relay [flags] <command> [args]
//
// Commands:
//
//	plan      - plan a trip
//	game      - play one turn of the text adventure
//	career    - build a career plan
//	consult   - ask a single career question
//	show      - print a saved session
//	modify    - change a session's request and rerun what it affects
//	serve     - run the HTTP and websocket API
//	graph     - show, validate and export pipeline definitions
//	audit     - list recorded stage attempts
//	version   - print the build version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
