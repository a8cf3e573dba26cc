package web

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/thornhill6305/zui/internal/tmux"
)

// Terminal is a process running behind a PTY master.
type Terminal interface {
	io.ReadWriter
	Resize(cols, rows uint16) error
	// Signal delivers sig to the process group.
	Signal(sig syscall.Signal) error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Close releases the PTY master.
	Close() error
}

// Launcher attaches to session name inside a new PTY of the given size.
type Launcher func(name string, cols, rows uint16) (Terminal, error)

// TmuxLauncher runs `tmux attach-session` for client's server.
func TmuxLauncher(client *tmux.Client) Launcher {
	return func(name string, cols, rows uint16) (Terminal, error) {
		t, err := startPTY(client.AttachCommand(name), cols, rows)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

type ptyTerminal struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	done      chan struct{}
	closeOnce sync.Once
}

// startPTY starts cmd as a session leader on a new PTY, so its pid is also
// its process group id.
func startPTY(cmd *exec.Cmd, cols, rows uint16) (*ptyTerminal, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	t := &ptyTerminal{cmd: cmd, ptmx: ptmx, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(t.done)
	}()
	return t, nil
}

func (t *ptyTerminal) Read(p []byte) (int, error)  { return t.ptmx.Read(p) }
func (t *ptyTerminal) Write(p []byte) (int, error) { return t.ptmx.Write(p) }

func (t *ptyTerminal) Resize(cols, rows uint16) error {
	// Only this client's PTY changes; tmux recomputes the window size from
	// all attached clients.
	return pty.Setsize(t.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (t *ptyTerminal) Signal(sig syscall.Signal) error {
	if t.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := syscall.Kill(-t.cmd.Process.Pid, sig); err == nil {
		return nil
	}
	return t.cmd.Process.Signal(sig)
}

func (t *ptyTerminal) Done() <-chan struct{} { return t.done }

func (t *ptyTerminal) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.ptmx.Close() })
	return err
}
