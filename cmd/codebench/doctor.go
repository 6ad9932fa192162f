package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/internal/appconfig"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var prompt string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run codebench diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			remotes, err := buildRemoteDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer remotes.close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			runtimes, err := remotes.piston.Runtimes(ctx)
			if err != nil {
				return fmt.Errorf("execution service %s: %w", remotes.piston.Endpoint(), err)
			}
			missing := missingRuntimes(runtimes)
			if len(missing) > 0 {
				logger.Warn("doctor runtimes missing", "languages", missing)
			} else {
				logger.Info("doctor execution ok", "endpoint", remotes.piston.Endpoint(), "runtimes", len(runtimes))
			}

			if !remotes.inference.HasToken() {
				logger.Warn("doctor inference token missing", "token_env", cfg.Inference.TokenEnv)
			}
			if strings.TrimSpace(prompt) == "" {
				logger.Info("doctor inference check skipped", "reason", "no prompt")
				return nil
			}
			genCtx, genCancel := context.WithTimeout(cmd.Context(), timeout)
			defer genCancel()
			text, err := remotes.generator.Generate(genCtx, core.GenerateRequest{Prompt: prompt, Purpose: schema.PurposeChat})
			if err != nil {
				return fmt.Errorf("inference service: %w", err)
			}
			logger.Info("doctor inference ok", "model", remotes.inference.ModelURL(schema.PurposeChat), "response_bytes", len(text))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&prompt, "prompt", "", "send a test prompt to the chat model")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for each remote check")
	return cmd
}

// missingRuntimes lists supported languages whose pinned version is not offered.
func missingRuntimes(runtimes []schema.Runtime) []string {
	index := runtimeIndex(runtimes)
	var missing []string
	for _, lang := range schema.SupportedLanguages() {
		if !index[runtimeKey(string(lang), lang.RuntimeVersion())] {
			missing = append(missing, fmt.Sprintf("%s@%s", lang, lang.RuntimeVersion()))
		}
	}
	return missing
}
