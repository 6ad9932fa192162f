package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/internal/appconfig"
	"pkt.systems/codebench/internal/eventbus"
	"pkt.systems/codebench/internal/importer"
	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

var errProgramStderr = errors.New("program wrote to stderr")

// localSession is an in-process session for one-shot commands.
type localSession struct {
	service core.Service
	bus     *eventbus.Bus
	remotes remoteDeps
	id      schema.SessionID
}

func openLocalSession(ctx context.Context, cfgPath string, lang schema.Language) (*localSession, error) {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	remotes, err := buildRemoteDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	bus := eventbus.New(logger)
	deps := remotes.serviceDeps(logger)
	deps.EventSink = bus
	service, err := core.NewService(cfg.ServiceConfig(), deps)
	if err != nil {
		remotes.close(ctx)
		return nil, err
	}
	created, err := service.CreateSession(ctx, schema.CreateSessionRequest{Language: lang})
	if err != nil {
		remotes.close(ctx)
		return nil, err
	}
	return &localSession{service: service, bus: bus, remotes: remotes, id: created.Session.ID}, nil
}

func (l *localSession) close(ctx context.Context) {
	if _, err := l.service.CloseSession(ctx, schema.CloseSessionRequest{SessionID: l.id}); err != nil {
		pslog.Ctx(ctx).Debug("local session close failed", "err", err)
	}
	l.remotes.close(context.Background())
}

// watch logs operation transitions until the returned stop func is called.
func (l *localSession) watch(ctx context.Context) func() {
	ch, unsubscribe := l.bus.Subscribe(l.id)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range ch {
			if event.Type != schema.SessionEventOperation {
				continue
			}
			status := event.Snapshot.Status(event.Operation)
			log := logx.WithStatus(logx.WithSessionOp(ctx, l.id, event.Operation), status)
			if status.Pending() {
				log.Info("operation pending")
				continue
			}
			log.Debug("operation settled")
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	var language string
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Import a source file and execute it remotely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			lang, err := runLanguage(path, language)
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()

			local, err := openLocalSession(ctx, cfgPath, lang)
			if err != nil {
				return err
			}
			defer local.close(ctx)
			stop := local.watch(ctx)
			defer stop()

			imported, err := local.service.ImportFile(ctx, schema.ImportFileRequest{
				SessionID: local.id,
				FileName:  filepath.Base(path),
				Content:   file,
			})
			if err != nil {
				return err
			}
			if imported.LanguageMismatch {
				pslog.Ctx(ctx).Warn("run language differs from file extension", "language", imported.Session.Document.Language, "detected", imported.DetectedLanguage)
			}
			resp, err := local.service.Run(ctx, schema.RunRequest{SessionID: local.id})
			if err != nil {
				return err
			}
			if !resp.Accepted {
				pslog.Ctx(ctx).Info("run skipped", "reason", "empty source")
				return nil
			}
			if err := settledError(schema.OperationRun, resp.Status); err != nil {
				return err
			}
			if resp.Session.Output == nil {
				return nil
			}
			if err := writeText(cmd.OutOrStdout(), strings.Join(resp.Session.Output.OutputLines, "\n")); err != nil {
				return err
			}
			if resp.Session.Output.HasError {
				return errProgramStderr
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&language, "language", "l", "", "language (defaults to the file extension)")
	return cmd
}

// runLanguage picks the flag value, then the extension's language, then the
// configured default.
func runLanguage(path, flag string) (schema.Language, error) {
	if strings.TrimSpace(flag) != "" {
		return schema.NormalizeLanguage(flag)
	}
	ext, err := importer.Extension(path)
	if err != nil {
		return "", err
	}
	if lang, ok := importer.LanguageForExtension(ext); ok {
		return lang, nil
	}
	return "", nil
}

func newGenerateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate code from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := openLocalSession(ctx, cfgPath, "")
			if err != nil {
				return err
			}
			defer local.close(ctx)
			stop := local.watch(ctx)
			defer stop()

			resp, err := local.service.Generate(ctx, schema.GenerateRequest{SessionID: local.id, Prompt: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			if err := settledError(schema.OperationGenerate, resp.Status); err != nil {
				return err
			}
			return writeText(cmd.OutOrStdout(), resp.Session.GeneratedCode)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func newAskCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask the chat model a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := openLocalSession(ctx, cfgPath, "")
			if err != nil {
				return err
			}
			defer local.close(ctx)
			stop := local.watch(ctx)
			defer stop()

			resp, err := local.service.SendQuery(ctx, schema.SendQueryRequest{SessionID: local.id, Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			if !resp.Accepted {
				return fmt.Errorf("%w: empty query", schema.ErrInvalidRequest)
			}
			if err := settledError(schema.OperationQuery, resp.Status); err != nil {
				return err
			}
			if resp.Turn == nil {
				return nil
			}
			return writeText(cmd.OutOrStdout(), resp.Turn.Response)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func settledError(op schema.OperationName, status schema.OperationStatus) error {
	if status.State != schema.OperationFailed {
		return nil
	}
	if status.ErrorKind != "" {
		return fmt.Errorf("%s failed (%s): %s", op, status.ErrorKind, status.Message)
	}
	return fmt.Errorf("%s failed: %s", op, status.Message)
}

func writeText(w io.Writer, text string) error {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}
