package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/term"

	"github.com/thornhill6305/zui/internal/session"
	"github.com/thornhill6305/zui/internal/stream"
)

// detachKey (Ctrl-]) ends `zui attach` without touching the session.
const detachKey = 0x1d

func (a *app) handleAttach(args []string) int {
	cfg := a.store.Get()
	fs := a.newFlagSet("attach", "attach <name|#> [options]",
		"Stream a session through a zui web server. Press Ctrl-] to detach.",
		"zui attach api-main", "zui attach 2 --url http://devbox:3030 --token s3cret")
	baseURL := fs.String("url", "http://"+cfg.WebAddr(), "Web server base URL")
	token := fs.String("token", cfg.Web.Token, "Access token")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	ctx, cancel := commandContext()
	name, err := resolveTarget(fs.Arg(0), a.manager.List(ctx, session.ListOptions{}))
	cancel()
	if err != nil {
		return a.fail("%v", err)
	}

	wsURL, err := stream.TerminalURL(*baseURL, name)
	if err != nil {
		return a.fail("%v", err)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return a.fail("attach needs an interactive terminal")
	}

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}
	client := stream.NewClient(wsURL, stream.Options{
		Header: header,
		OnData: func(p []byte) { _, _ = os.Stdout.Write(p) },
		OnStateChange: func(s stream.State) {
			if s == stream.Reconnecting {
				fmt.Fprint(os.Stderr, "\r\n[zui] connection lost, reconnecting...\r\n")
			}
		},
	})

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return a.fail("raw mode: %v", err)
	}
	restore := func() { _ = term.Restore(fd, oldState) }

	if cols, rows, err := term.GetSize(fd); err == nil {
		client.SendResize(cols, rows)
	}
	client.Connect()
	done := client.Done()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-winch:
				if cols, rows, err := term.GetSize(fd); err == nil {
					client.SendResize(cols, rows)
				}
			}
		}
	}()

	var detached atomic.Bool
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if i := bytes.IndexByte(buf[:n], detachKey); i >= 0 {
					if i > 0 {
						client.Send(buf[:i])
					}
					detached.Store(true)
					client.Disconnect()
					return
				}
				client.Send(buf[:n])
			}
			if err != nil {
				client.Disconnect()
				return
			}
		}
	}()

	<-done
	restore()

	switch err := client.Err(); {
	case errors.Is(err, stream.ErrInvalidTarget):
		return a.fail("session %s is not available", name)
	case err != nil:
		return a.fail("%v", err)
	}
	if detached.Load() {
		fmt.Fprintf(a.stdout, "\r\n[zui] detached from %s\n", name)
	} else {
		fmt.Fprintf(a.stdout, "\r\n[zui] session %s ended\n", name)
	}
	return 0
}
