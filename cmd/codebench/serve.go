package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codebench"
	"pkt.systems/codebench/internal/appconfig"
	"pkt.systems/codebench/internal/version"
	"pkt.systems/pslog"
)

const serveStopTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the codebench HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(addr) != "" {
				cfg.HTTP.Addr = addr
			}
			logger.Info("serve start", "version", version.Current(), "config", cfgPath)

			remotes, err := buildRemoteDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer remotes.close(context.Background())

			serverCfg := codebench.ServerConfig{
				Service: cfg.ServiceConfig(),
				HTTP:    cfg.HTTPAPIConfig(),
			}
			serverDeps := codebench.ServerDeps{
				ServiceDeps: remotes.serviceDeps(logger),
				Runtimes:    remotes.piston,
			}
			server, err := codebench.New(serverCfg, serverDeps, codebench.WithHTTP())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), serveStopTimeout)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
