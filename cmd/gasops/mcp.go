package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jiujiugas/gasops/internal/config"
	"github.com/jiujiugas/gasops/internal/httpapi"
	"github.com/jiujiugas/gasops/internal/mcpsim"
)

func newMCPCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Simulated IDA Pro MCP server",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulated IDA Pro MCP endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.MCPAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := a.log.With("component", "mcpsim")
			srv := mcpsim.New(mcpsim.WithLogger(log))
			return httpapi.Serve(ctx, addr, srv.Handler(), log)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default "+config.KeyMCPAddr+" or "+config.DefaultMCPAddr+")")
	cmd.AddCommand(serve)
	return cmd
}
