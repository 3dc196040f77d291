// Command pokersync is a terminal client for collaborative story estimation.
//
// It keeps a live, reconciled view of one estimation session over the
// service's push channel and exposes the session through subcommands:
//
//	create   start a new session as moderator and follow it
//	join     join an existing session by code and follow it
//	resume   rejoin the last session from persisted state
//	leave    leave the current session and clear resume state
//	decks    list built-in and custom estimate decks
//	mcp      serve the session tools over MCP stdio
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log15 "github.com/inconshreveable/log15/v3"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/config"
	"github.com/pandac/pokersync/poker/model"
	"github.com/pandac/pokersync/poker/session"
	syncpkg "github.com/pandac/pokersync/poker/sync"
	"github.com/pandac/pokersync/transport/mcp"
	"github.com/pandac/pokersync/transport/websocket"
)

const version = "1.0.0"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the wired collaborators shared by all subcommands.
type app struct {
	cfg     *config.Config
	log     log15.Logger
	client  *api.Client
	manager *session.Manager
	decks   *config.DeckManager
}

func newApp() *cli.Command {
	var a app

	return &cli.Command{
		Name:    "pokersync",
		Usage:   "live planning poker session client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "REST API base URL (overrides POKER_SERVER_URL)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := a.init(cmd); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a new session as moderator and follow it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "session name", Required: true},
					&cli.StringFlag{Name: "moderator", Usage: "your display name", Required: true},
					&cli.StringFlag{Name: "method", Usage: "sizing method", Value: string(model.Fibonacci)},
					&cli.StringFlag{Name: "deck", Usage: "custom deck name when method is CUSTOM"},
				},
				Action: a.runCreate,
			},
			{
				Name:  "join",
				Usage: "join an existing session by code and follow it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "6-character session code", Required: true},
					&cli.StringFlag{Name: "user", Usage: "your display name", Required: true},
					&cli.BoolFlag{Name: "observer", Usage: "join without voting"},
				},
				Action: a.runJoin,
			},
			{
				Name:   "resume",
				Usage:  "rejoin the last session from persisted state",
				Action: a.runResume,
			},
			{
				Name:   "leave",
				Usage:  "leave the current session and clear resume state",
				Action: a.runLeave,
			},
			{
				Name:   "decks",
				Usage:  "list built-in and custom estimate decks",
				Action: a.runDecks,
			},
			{
				Name:   "mcp",
				Usage:  "serve session tools over MCP stdio",
				Action: a.runMCP,
			},
		},
	}
}

// init loads configuration and wires the shared collaborators. Flag values
// override the environment.
func (a *app) init(cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if server := cmd.String("server"); server != "" {
		cfg.ServerURL = server
		cfg.WSURL = config.DeriveWSURL(server)
	}
	if cmd.Bool("debug") {
		cfg.Debug = true
	}
	a.cfg = cfg

	a.log = log15.New()
	level := log15.LvlInfo
	if cfg.Debug {
		level = log15.LvlDebug
	}
	a.log.SetHandler(log15.LvlFilterHandler(level, log15.StderrHandler))

	a.client = api.NewClient(cfg.ServerURL)
	a.decks = config.NewDeckManager(cfg.DeckDir)

	var store session.Store
	if cfg.StateDir != "" {
		fileStore, err := session.NewFileStore(cfg.StateDir)
		if err != nil {
			return err
		}
		store = fileStore
	}
	a.manager = session.NewManager(a.client, cfg.WSURL, store, a.log)
	return nil
}

func (a *app) runCreate(ctx context.Context, cmd *cli.Command) error {
	method := model.SizingMethod(strings.ToUpper(cmd.String("method")))
	req := api.CreateSessionRequest{
		Name:          cmd.String("name"),
		SizingMethod:  method,
		ModeratorName: cmd.String("moderator"),
	}
	if method == model.Custom {
		deck, err := a.decks.Load(cmd.String("deck"))
		if err != nil {
			return fmt.Errorf("custom method needs a valid --deck: %w", err)
		}
		req.CustomValues = deck.Values
	}

	cs, err := a.manager.Create(ctx, req)
	if err != nil {
		return err
	}
	defer cs.Close()

	fmt.Printf("Session %s created. Share this code so others can join.\n\n", cs.Code)
	return a.follow(ctx, cs)
}

func (a *app) runJoin(ctx context.Context, cmd *cli.Command) error {
	cs, err := a.manager.Join(ctx, strings.ToUpper(cmd.String("code")), api.JoinSessionRequest{
		Name:       cmd.String("user"),
		IsObserver: cmd.Bool("observer"),
	})
	if err != nil {
		return err
	}
	defer cs.Close()

	fmt.Printf("Joined session %s as %s.\n\n", cs.Code, cs.UserName)
	return a.follow(ctx, cs)
}

func (a *app) runResume(ctx context.Context, cmd *cli.Command) error {
	cs, err := a.manager.Resume(ctx)
	if err != nil {
		return err
	}
	defer cs.Close()

	fmt.Printf("Resumed session %s as %s.\n\n", cs.Code, cs.UserName)
	return a.follow(ctx, cs)
}

func (a *app) runLeave(ctx context.Context, cmd *cli.Command) error {
	state, err := a.manager.LoadResumeState()
	if err != nil {
		return err
	}
	a.client.Tokens().Set(state.Token)
	if err := a.client.LeaveSession(ctx, state.Session.SessionCode, state.UserID); err != nil {
		a.log.Warn("leave request failed; clearing local state anyway", "err", err)
	}
	a.manager.ClearResumeState()
	fmt.Printf("Left session %s.\n", state.Session.SessionCode)
	return nil
}

func (a *app) runDecks(ctx context.Context, cmd *cli.Command) error {
	for _, method := range []model.SizingMethod{model.Fibonacci, model.TShirt, model.PowersOf2, model.Linear} {
		fmt.Printf("%-12s %s\n", method, strings.Join(model.DefaultDeck(method), " "))
	}
	custom, err := a.decks.List()
	if err != nil {
		return err
	}
	for _, deck := range custom {
		fmt.Printf("%-12s %s\n", deck.Name, strings.Join(deck.Values, " "))
	}
	return nil
}

func (a *app) runMCP(ctx context.Context, cmd *cli.Command) error {
	srv := mcp.NewServer(a.client, a.decks)
	a.log.Info("serving MCP over stdio", "server", a.cfg.ServerURL)
	return mcpserver.ServeStdio(srv.GetMCPServer())
}

// follow renders the reconciled view on every effective change until the
// process is interrupted. Connection drops are surfaced as staleness notes;
// the view itself is kept and refreshed once the channel recovers.
func (a *app) follow(ctx context.Context, cs *session.ClientSession) error {
	updates, cancel := cs.Watch()
	defer cancel()

	cs.OnConnectionChange(func(state websocket.State) {
		switch state {
		case websocket.Connected:
			fmt.Println("-- connected --")
		case websocket.Connecting:
			fmt.Println("-- reconnecting, view may be stale --")
		case websocket.Disconnected:
			fmt.Println("-- disconnected --")
		}
	})

	printSnapshot(cs.Snapshot())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printSnapshot(snap)
		case <-stop:
			fmt.Println("\nLeaving view; session state is preserved for resume.")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printSnapshot(snap syncpkg.Snapshot) {
	if line := renderSnapshot(snap); line != "" {
		fmt.Println(line)
	}
}

// renderSnapshot formats the reconciled view as a single status line.
func renderSnapshot(snap syncpkg.Snapshot) string {
	if snap.Session == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", snap.Session.SessionCode, snap.Session.Name)
	if snap.CurrentStory != nil {
		fmt.Fprintf(&b, " | story: %s (%s)", snap.CurrentStory.Title, snap.CurrentStory.Status)
		if snap.CurrentStory.FinalEstimate != "" {
			fmt.Fprintf(&b, " = %s", snap.CurrentStory.FinalEstimate)
		}
	} else {
		b.WriteString(" | no active story")
	}
	if snap.Session.VotesRevealed {
		b.WriteString(" | votes REVEALED")
	}
	names := make([]string, 0, len(snap.Users))
	for _, u := range snap.Users {
		names = append(names, u.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, " | %s", strings.Join(names, ", "))
	}
	return b.String()
}
