package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentengine"
	"github.com/hupe1980/agentengine/config"
	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/remote"
	"github.com/hupe1980/agentengine/runner"
	"github.com/hupe1980/agentengine/server"
)

// load reads the config and builds the declared graph.
func (c *cli) load(path string) (*config.Config, *graph.Graph, logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger, err := cfg.Logger(c.stderr)
	if err != nil {
		return nil, nil, nil, err
	}

	g, err := cfg.Graph()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, g, logger, nil
}

func (c *cli) validate(args []string) error {
	fs, path := c.newFlagSet("validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, g, _, err := c.load(*path)
	if err != nil {
		return err
	}

	d, err := cfg.Descriptor(g)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "ok: root %s, %d agents, depth %d, entrypoint %s\n", g.Root().Name(), g.Len(), g.Depth(), d.Entrypoint)
	return nil
}

func (c *cli) describe(args []string) error {
	fs, path := c.newFlagSet("describe")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, g, _, err := c.load(*path)
	if err != nil {
		return err
	}

	d, err := cfg.Descriptor(g)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, string(out))
	return nil
}

func (c *cli) deploy(ctx context.Context, args []string) error {
	fs, path := c.newFlagSet("deploy")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, g, logger, err := c.load(*path)
	if err != nil {
		return err
	}

	client, err := remoteClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	done := logging.StartTimer(logger, "deploy")
	dep, err := agentengine.Deploy(ctx, client, g, cfg.Package(), cfg.DescriptorOptions())
	if err != nil {
		return err
	}
	done()

	fmt.Fprintln(c.stdout, dep.Handle.ResourceName)
	return nil
}

func (c *cli) query(ctx context.Context, args []string) error {
	fs, path := c.newFlagSet("query")
	resource := fs.String("resource", "", "resource name of the deployed graph (defaults to the config resource)")
	userID := fs.String("user", "", "user id")
	sessionID := fs.String("session", "", "session id")
	raw := fs.Bool("raw", false, "print every chunk as raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(c.stderr)
	if err != nil {
		return err
	}

	name := *resource
	if name == "" {
		name = cfg.Resource
	}
	h, err := remote.ParseHandle(name)
	if err != nil {
		return err
	}

	client, err := remoteClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	stream, err := agentengine.StreamQuery(ctx, client, h, *userID, *sessionID, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}

	p := &eventPrinter{w: c.stdout}
	for chunk, err := range agentengine.Chunks(stream) {
		if err != nil {
			p.flush()
			return err
		}
		switch {
		case *raw:
			fmt.Fprintln(c.stdout, string(chunk.Raw))
		case chunk.Event != nil:
			p.print(*chunk.Event)
		}
	}
	p.flush()
	return nil
}

func (c *cli) runLocal(ctx context.Context, args []string) error {
	fs, path := c.newFlagSet("run")
	userID := fs.String("user", "local", "user id")
	sessionID := fs.String("session", "", "session id (defaults to a new id)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, g, logger, err := c.load(*path)
	if err != nil {
		return err
	}

	r, err := newRunner(ctx, cfg, g, logger)
	if err != nil {
		return err
	}

	sid := *sessionID
	if sid == "" {
		sid = core.NewID()
	}

	p := &eventPrinter{w: c.stdout}
	for ev, err := range r.Run(ctx, *userID, sid, strings.Join(fs.Args(), " ")) {
		if err != nil {
			p.flush()
			return err
		}
		p.print(ev)
	}
	p.flush()
	return nil
}

func (c *cli) serve(ctx context.Context, args []string) error {
	fs, path := c.newFlagSet("serve")
	addr := fs.String("addr", "", "listen address (defaults to the config server address)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, g, logger, err := c.load(*path)
	if err != nil {
		return err
	}

	catalog := descriptor.NewCatalog()
	if err := catalog.Add(cfg.Entrypoint(g), g); err != nil {
		return err
	}

	emu, err := server.New(catalog, func(g *graph.Graph) (*runner.Runner, error) {
		return newRunner(ctx, cfg, g, logger)
	}, func(o *server.Options) {
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	listen := *addr
	if listen == "" {
		listen = cfg.Server.Addr
	}
	srv := &http.Server{Addr: listen, Handler: emu.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.start", "addr", listen, "entrypoint", cfg.Entrypoint(g).String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// eventPrinter writes partial text as it arrives and skips the final text
// event that repeats it.
type eventPrinter struct {
	w       io.Writer
	partial bool
}

func (p *eventPrinter) print(ev core.Event) {
	if ev.ErrorMessage != "" {
		p.flush()
		fmt.Fprintf(p.w, "[%s] error %s: %s\n", ev.Author, ev.ErrorCode, ev.ErrorMessage)
		return
	}
	for _, fc := range ev.GetFunctionCalls() {
		p.flush()
		fmt.Fprintf(p.w, "[%s] call %s(%s)\n", ev.Author, fc.Name, fc.Arguments)
	}
	for _, fr := range ev.GetFunctionResponses() {
		p.flush()
		if fr.Error != "" {
			fmt.Fprintf(p.w, "[%s] %s failed: %s\n", ev.Author, fr.Name, fr.Error)
		} else {
			fmt.Fprintf(p.w, "[%s] %s done\n", ev.Author, fr.Name)
		}
	}

	text := ev.Text()
	switch {
	case text == "":
	case ev.Partial:
		fmt.Fprint(p.w, text)
		p.partial = true
	case p.partial:
		p.flush()
	default:
		fmt.Fprintln(p.w, text)
	}
}

func (p *eventPrinter) flush() {
	if p.partial {
		fmt.Fprintln(p.w)
		p.partial = false
	}
}
