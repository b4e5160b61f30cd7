// Command gatord is the host-side performance-monitoring daemon. The
// same binary plays two roles, selected by argv[1] exactly as spec.md
// §6.3 describes ("the executable acts as both the daemon and the agent
// based on argv[0]/argv[1]"): run with no special argument it is the
// capture-pipeline core; re-exec'd as `/proc/self/exe agent-perf` by its
// own daemon process, it is the privileged perf agent's IPC endpoint.
package main

import (
	"os"

	"github.com/ARM-software/gator-sub005/internal/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Errorf("gatord: %v", err)
		os.Exit(1)
	}
}
