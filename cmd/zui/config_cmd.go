package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/thornhill6305/zui/internal/config"
)

func (a *app) handleConfig(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(a.stderr, "Usage: zui config path|show|init [--force]")
		return 2
	}

	switch args[0] {
	case "path":
		fmt.Fprintln(a.stdout, a.store.Path())
		return 0
	case "show":
		cfg := *a.store.Get()
		cfg.Claude = nil
		if err := toml.NewEncoder(a.stdout).Encode(cfg); err != nil {
			return a.fail("%v", err)
		}
		return 0
	case "init":
		fs := a.newFlagSet("config init", "config init [--force]",
			"Write the default configuration to "+a.store.Path()+".")
		force := fs.Bool("force", false, "Overwrite an existing file")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}
		path := a.store.Path()
		if _, err := os.Stat(path); err == nil && !*force {
			return a.fail("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return a.fail("%v", err)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return a.fail("%v", err)
		}
		fmt.Fprintf(a.stdout, "Wrote %s\n", path)
		return 0
	default:
		fmt.Fprintf(a.stderr, "Unknown config command: %s\n", args[0])
		return 2
	}
}
