package agent

import (
	"bufio"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/ARM-software/gator-sub005/internal/log"
)

// agentArg is the argv[1] that re-dispatches the daemon binary into
// agent mode (spec.md §6.3: "executing /proc/self/exe with the argument
// agent-perf").
const agentArg = "agent-perf"

// Process wraps a spawned agent child with its three IPC pipes: stdin
// carries parent-to-agent messages, stdout carries agent-to-parent
// messages, stderr is a structured log stream read line-by-line.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// Spawn launches the current executable re-exec'd in agent mode,
// wiring up its three pipes.
func Spawn() (*Process, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "agent: resolve self executable")
	}

	cmd := exec.Command(exePath, agentArg)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "agent: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "agent: stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "agent: stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "agent: start agent process")
	}

	p := &Process{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}
	go p.pumpLog()
	return p, nil
}

// pumpLog forwards the agent's structured stderr log, line by line, into
// the parent's own logger with a field distinguishing the source.
func (p *Process) pumpLog() {
	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		log.WithField("source", "agent").Infof("%s", scanner.Text())
	}
}

// Send writes one message to the agent's stdin pipe.
func (p *Process) Send(msg Message) error {
	return WriteMessage(p.stdin, msg)
}

// Recv reads one message from the agent's stdout pipe.
func (p *Process) Recv() (Message, error) {
	return ReadMessage(p.stdout)
}

// Wait blocks until the agent process exits, as a caller's SIGCHLD
// back-stop (spec.md §4.6: "On SIGCHLD: transition directly to
// terminated").
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// PID returns the spawned agent's process ID.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}
