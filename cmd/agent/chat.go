package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase"
)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	defID := fs.String("definition", "", "agent definition id")
	resume := fs.String("resume", "", "stored agent id to continue")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := setup(ctx, configPath(*cfgPath))
	if err != nil {
		return err
	}
	defer a.close()

	def, err := a.definition(*defID)
	if err != nil {
		return err
	}

	var agent *domain.AgentInstance
	if *resume != "" {
		agent, err = a.store.LoadAgent(ctx, *resume)
		if err != nil {
			return err
		}
		if agent.DefinitionID != def.ID {
			if def, err = a.definition(agent.DefinitionID); err != nil {
				return err
			}
		}
	} else {
		agent = domain.NewAgentInstance(def)
	}

	unsubscribe := a.bus.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		a.log.DebugContext(ctx, "event", "type", ev.Type, "agent_id", ev.AgentID)
	})
	defer unsubscribe()

	s := &session{
		handler: a.handler,
		def:     def,
		agent:   agent,
		store:   a.store,
		out:     os.Stdout,
	}
	s.render = newRenderer(s.out)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == os.Interrupt && s.interrupt() {
				continue
			}
			stop()
			return
		}
	}()

	a.log.Info("chat started", "agent_id", agent.ID, "definition", def.ID, "messages", len(agent.Messages))
	fmt.Fprintf(s.out, "%s (%s). /new starts over, /quit exits.\n", def.Name, agent.ID)
	return s.loop(ctx, readLines(ctx, os.Stdin))
}

// agentStore is the part of the store a chat session needs.
type agentStore interface {
	domain.MessagePersister
	SaveAgent(ctx context.Context, a *domain.AgentInstance) error
}

// session is one interactive conversation.
type session struct {
	handler *usecase.Handler
	def     *domain.AgentDefinition
	agent   *domain.AgentInstance
	store   agentStore
	out     io.Writer
	render  *renderer

	running   atomic.Bool
	cancelled atomic.Bool
}

// interrupt cancels the running round. It reports false when no round is
// running.
func (s *session) interrupt() bool {
	if !s.running.Load() {
		return false
	}
	s.cancelled.Store(true)
	return true
}

func (s *session) loop(ctx context.Context, lines <-chan string) error {
	for {
		fmt.Fprint(s.out, promptLine("you"))
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			s.agent = domain.NewAgentInstance(s.def)
			fmt.Fprintf(s.out, "new conversation %s\n", s.agent.ID)
			continue
		}
		if err := s.send(ctx, line); err != nil {
			return err
		}
	}
}

// send appends a user message and streams one invocation to the terminal.
func (s *session) send(ctx context.Context, text string) error {
	msg := domain.NewMessage(domain.RoleUser, text)
	s.agent.AppendMessage(msg)
	if err := s.store.SaveAgent(ctx, s.agent); err != nil {
		return err
	}
	s.store.DebounceUpdateMessage(*msg, s.agent.ID)

	s.cancelled.Store(false)
	s.running.Store(true)
	defer s.running.Store(false)

	for status := range s.handler.Run(ctx, usecase.RunInput{
		Agent:       s.agent,
		Definition:  s.def,
		IsCancelled: s.cancelled.Load,
	}) {
		s.render.status(status)
	}
	s.render.endLine()

	if ctx.Err() != nil {
		return nil
	}
	return s.store.SaveAgent(ctx, s.agent)
}

// readLines forwards input lines until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
