// Command taskpoolctl is a small operator-facing front end for the
// taskpool package: run a single script, benchmark N copies, or serve a
// live stats feed. It lives entirely outside the core package and only
// touches the pool through its documented public API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "bench":
		err = benchCmd(os.Args[2:])
	case "serve":
		err = serveCmd(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "taskpoolctl: unknown subcommand %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "taskpoolctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: taskpoolctl <command> [flags]

commands:
  run <file.js>          submit one script task and print its result
  bench <file.js> -n N   submit N copies and report throughput
  serve                  run the pool with a live stats WebSocket feed

run "taskpoolctl <command> -h" for command-specific flags`)
}
