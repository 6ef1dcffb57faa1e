// Package main provides the issuebridge command: it records issue-creation
// intents for Board items and drives a Tracker browser page to fill the
// create-issue form for them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/issuebridge/pkg/producer"
)

const version = "0.1.0"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{"watch", "drive a Tracker browser page and fill forms for pending intents", runWatch},
	{"create", "record a pending intent for a Board item", runCreate},
	{"status", "show settings and the pending intent", runStatus},
	{"config", "show or change settings", runConfig},
	{"probe", "report which form elements the locator finds on a page", runProbe},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name, args := os.Args[1], os.Args[2:]
	switch name {
	case "-h", "-help", "--help", "help":
		usage()
		return
	case "-version", "--version", "version":
		fmt.Printf("issuebridge v%s\n", version)
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	err := cmd.run(ctx, args)
	cancel()

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, producer.ErrBaseURLMissing):
		fmt.Fprintln(os.Stderr, errorStyle.Render("Tracker base URL is not configured."))
		fmt.Fprintln(os.Stderr, "Set it with: issuebridge config set base_url your-site.atlassian.net")
		os.Exit(1)
	default:
		log.Fatalf("%s: %v", name, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "issuebridge - Board to Tracker issue bridge\n\n")
	fmt.Fprintf(os.Stderr, "Usage: issuebridge <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'issuebridge <command> -h' for command options.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  issuebridge config set base_url acme.atlassian.net\n")
	fmt.Fprintf(os.Stderr, "  issuebridge config set project_mappings @mappings.txt\n")
	fmt.Fprintf(os.Stderr, "  issuebridge watch -profile ~/.issuebridge/profile\n")
	fmt.Fprintf(os.Stderr, "  issuebridge create -summary 'Fix login bug' -url https://board.example/projects/222/todos/9\n")
	fmt.Fprintf(os.Stderr, "  issuebridge probe saved-create-dialog.html\n")
}

func newFlagSet(name, args string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.json (default: ~/.issuebridge/config.json)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: issuebridge %s [options] %s\n\nOptions:\n", name, args)
		fs.PrintDefaults()
	}
	return fs, configPath
}
