package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"
)

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	workspace := fs.String("workspace", "", "workspace name (default: directory name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tidgi-agent index [--workspace NAME] DIR")
	}
	dir := fs.Arg(0)
	if *workspace == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		*workspace = filepath.Base(abs)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, configPath(*cfgPath))
	if err != nil {
		return err
	}
	defer a.close()

	started := time.Now()
	stats, err := a.knowledge.IndexDir(ctx, dir, *workspace, a.cfg.Knowledge.Workers)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d notes into %q (%d skipped) in %s\n",
		stats.Indexed, *workspace, stats.Skipped, time.Since(started).Round(time.Millisecond))
	return nil
}

func runAgents(args []string) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := setup(ctx, configPath(*cfgPath))
	if err != nil {
		return err
	}
	defer a.close()

	agents, err := a.store.ListAgents(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("no stored conversations")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEFINITION\tSTATE\tMODIFIED")
	for _, ag := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ag.ID, ag.DefinitionID, ag.State, ag.Modified.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
