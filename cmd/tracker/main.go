// Command tracker runs the multi-tenant issue tracker.
//
// Usage:
//
//	tracker serve [--migrate]               # run the HTTP API
//	tracker migrate [--db URL]              # apply schema migrations
//	tracker user create --handle alice      # register a user
//	tracker token create --user ID --name ci
//	tracker jobs run                        # run maintenance jobs once
//
// Configuration comes from TRACKER_* environment variables and an optional
// YAML file (--config or TRACKER_CONFIG_FILE). See pkg/config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
