package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var shellCompleter = readline.NewPrefixCompleter(
	readline.PcItem("probe"),
	readline.PcItem("erase"),
	readline.PcItem("mass-erase"),
	readline.PcItem("write"),
	readline.PcItem("protect",
		readline.PcItem("on"),
		readline.PcItem("off"),
	),
	readline.PcItem("protect-check"),
	readline.PcItem("ob",
		readline.PcItem("read"),
		readline.PcItem("write",
			readline.PcItem("USER"),
			readline.PcItem("SPC"),
			readline.PcItem("WRP0"),
			readline.PcItem("WRP1"),
		),
		readline.PcItem("reload"),
	),
	readline.PcItem("lock"),
	readline.PcItem("unlock"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

// shellCommands lists what may run inside the shell.
var shellCommands = map[string]bool{
	"probe":         true,
	"erase":         true,
	"mass-erase":    true,
	"write":         true,
	"protect":       true,
	"protect-check": true,
	"ob":            true,
	"lock":          true,
	"unlock":        true,
	"help":          true,
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gdflash_history")
}

func runShell(cmd *cobra.Command, args []string) error {
	if shared != nil {
		return errors.New("already in a shell")
	}

	s, err := connect()
	if err != nil {
		return err
	}
	shared = s
	defer func() {
		shared = nil
		s.Close()
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gdflash> ",
		HistoryFile:     historyFile(),
		AutoComplete:    shellCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("Connected to %s, type help for commands, exit to quit\n", s.name)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if !shellCommands[fields[0]] {
			fmt.Fprintf(rl.Stderr(), "Error: %q is not available in the shell\n", fields[0])
			continue
		}

		// a fresh tree per line so flags start from their defaults
		root := newRootCmd()
		root.SetArgs(fields)
		root.SetOut(rl.Stdout())
		root.SetErr(rl.Stderr())
		root.Execute()
	}
}
