package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jiujiugas/gasops/internal/gasdb"
	"github.com/jiujiugas/gasops/internal/httpapi"
	"github.com/jiujiugas/gasops/internal/linebot"
	"github.com/jiujiugas/gasops/internal/llm"
	"github.com/jiujiugas/gasops/internal/session"
)

func newBotCmd(a *app) *cobra.Command {
	var lineEndpoint string
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "LINE webhook bot",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the LINE webhook and HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serveBot(cmd.Context(), lineEndpoint)
		},
	}
	serve.Flags().StringVar(&lineEndpoint, "line-endpoint", "", "LINE Messaging API base URL (default the public API)")
	cmd.AddCommand(serve)
	return cmd
}

func (a *app) serveBot(ctx context.Context, lineEndpoint string) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	roles, err := linebot.ParseRoles(cfg.Bot.Groups)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llm.New(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKeys:       cfg.LLM.APIKeys,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		Timeout:       cfg.LLM.Timeout,
		MaxRetries:    cfg.LLM.MaxRetries,
		Logger:        a.log.With("component", "llm"),
	})
	if err != nil {
		return err
	}
	messenger, err := linebot.NewLineMessenger(cfg.Line.ChannelAccessToken, lineEndpoint)
	if err != nil {
		return err
	}
	sessions := session.New(cfg.Session.TTL, cfg.Session.MaxHistory)

	botCfg := linebot.Config{
		Messenger:   messenger,
		LLM:         client,
		Sessions:    sessions,
		TriggerWord: cfg.Bot.TriggerWord,
		Roles:       roles,
		Logger:      a.log.With("component", "linebot"),
	}
	apiCfg := httpapi.Config{
		Version: version,
		Logger:  a.log.With("component", "httpapi"),
	}
	db, err := gasdb.Open(ctx, cfg.DatabaseURL)
	switch {
	case errors.Is(err, gasdb.ErrNoDatabase):
		a.log.Warn("no database configured, business commands and message logging are off")
	case err != nil:
		a.log.Warn("database unavailable, continuing without it", "error", err)
	default:
		defer db.Close()
		botCfg.Store = db
		apiCfg.DB = db
	}

	dispatcher := linebot.NewDispatcher(linebot.New(botCfg),
		linebot.WithWorkers(cfg.Bot.Workers),
		linebot.WithDispatcherLogger(a.log.With("component", "dispatcher")),
	)
	apiCfg.Webhook = linebot.WebhookHandler(cfg.Line.ChannelSecret, dispatcher, a.log.With("component", "webhook"))
	addr := ":" + strconv.Itoa(cfg.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return httpapi.Serve(gctx, addr, httpapi.NewRouter(apiCfg), a.log)
	})
	a.log.Info("line bot starting", "addr", addr, "model", cfg.LLM.Model,
		"trigger_word", cfg.Bot.TriggerWord, "role_groups", len(roles), "database", botCfg.Store != nil)
	return g.Wait()
}
