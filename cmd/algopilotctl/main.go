// Command algopilotctl administers an algopilot database: schema
// migrations, operator users, encryption keys, stored sessions and the
// broker instrument master.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
