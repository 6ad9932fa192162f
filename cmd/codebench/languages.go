package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/codebench/internal/appconfig"
	"pkt.systems/codebench/internal/piston"
	"pkt.systems/codebench/schema"
)

func newLanguagesCmd() *cobra.Command {
	var cfgPath string
	var remote bool
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			var available map[string]bool
			if remote {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				runtimes, err := piston.New(cfg.PistonConfig()).Runtimes(cmd.Context())
				if err != nil {
					return err
				}
				available = runtimeIndex(runtimes)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if remote {
				_, _ = fmt.Fprintln(w, "LANGUAGE\tVERSION\tAVAILABLE")
			} else {
				_, _ = fmt.Fprintln(w, "LANGUAGE\tVERSION")
			}
			for _, lang := range schema.SupportedLanguages() {
				if remote {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%t\n", lang, lang.RuntimeVersion(), available[runtimeKey(string(lang), lang.RuntimeVersion())])
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\n", lang, lang.RuntimeVersion())
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&remote, "remote", false, "check availability against the execution service")
	return cmd
}

// runtimeIndex keys runtimes by name and alias at their version.
func runtimeIndex(runtimes []schema.Runtime) map[string]bool {
	out := make(map[string]bool, len(runtimes))
	for _, rt := range runtimes {
		out[runtimeKey(rt.Language, rt.Version)] = true
		for _, alias := range rt.Aliases {
			out[runtimeKey(alias, rt.Version)] = true
		}
	}
	return out
}

func runtimeKey(language, version string) string {
	return language + "@" + version
}
