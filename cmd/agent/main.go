package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	args := os.Args[1:]
	cmd := "chat"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "help":
		showUsage()
		return
	case "chat":
		err = runChat(args)
	case "index":
		err = runIndex(args)
	case "agents":
		err = runAgents(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'tidgi-agent help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`tidgi-agent - wiki agent conversation engine

USAGE:
    tidgi-agent [COMMAND] [FLAGS]

COMMANDS:
    chat        Start an interactive conversation (default)
                Flags: --definition ID, --resume AGENT_ID
    index DIR   Index .tid and .md notes under DIR
                Flags: --workspace NAME
    agents      List stored conversations
    help        Show this help message

FLAGS:
    --config PATH   Config file (default: ./config.yaml, or TIDGI_CONFIG)

CONFIGURATION:
    Environment: TIDGI_* variables and a .env file override config

While a reply is streaming, Ctrl-C cancels it. At the prompt, Ctrl-C or
/quit exits.`)
}

// configPath returns the --config flag value, TIDGI_CONFIG, or the default.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("TIDGI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// configFlag registers --config on fs.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "config file path")
}
