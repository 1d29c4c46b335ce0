package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gamma-omg/rag-chat/backends"
	"github.com/gamma-omg/rag-chat/docstore"
)

func newIngestCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload documents (.txt .md .csv .json .docx .odt)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(a *app) error {
				var errs []error
				for _, path := range args {
					doc, err := a.registry.IngestPath(cmd.Context(), path)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", path, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d chunks\n", doc.ID, doc.Filename, len(doc.Chunks))
				}

				return errors.Join(errs...)
			})
		},
	}
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*cfgPath, func(a *app) error {
				docs, err := a.registry.List(cmd.Context())
				if err != nil {
					if !errors.Is(err, docstore.ErrStorageUnavailable) {
						return err
					}
					a.log.Warn("document collection unreadable, listing as empty", "error", err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFILENAME\tUPLOADED\tCHUNKS")
				for _, d := range docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", d.ID, d.Filename, d.UploadedAt.Format(time.RFC3339), len(d.Chunks))
				}

				return w.Flush()
			})
		},
	}
}

func newRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove uploaded documents by id (unknown ids are skipped)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(a *app) error {
				var errs []error
				for _, id := range args {
					doc, err := a.store.Get(cmd.Context(), id)
					if errors.Is(err, docstore.ErrNotFound) {
						fmt.Fprintf(cmd.OutOrStdout(), "no document %s\n", id)
						continue
					}
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}

					if err := a.registry.Remove(cmd.Context(), id); err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%s)\n", id, doc.Filename)
				}

				return errors.Join(errs...)
			})
		},
	}
}

func newResetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove every uploaded document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*cfgPath, func(a *app) error {
				if err := a.store.Clear(cmd.Context()); err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), "all documents removed")
				return nil
			})
		},
	}
}

func newQueryCmd(cfgPath *string) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Show the chunks most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(a *app) error {
				if !cmd.Flags().Changed("top") {
					k = a.cfg.Ranking.MaxChunks
				}

				res := a.ranker.Rank(cmd.Context(), strings.Join(args, " "), k)
				if len(res) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no relevant chunks")
					return nil
				}

				for _, r := range res {
					fmt.Fprintf(cmd.OutOrStdout(), "%.3f\t%s\t%s\n", r.Score, r.Filename, r.Chunk)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 0, "Number of chunks to return (default ranking.max_chunks)")

	return cmd
}

func newAskCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(a *app) error {
				assistant, err := a.assistant()
				if err != nil {
					return err
				}

				res, err := assistant.Reply(cmd.Context(), nil, strings.Join(args, " "))
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func newChatCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation (exit with 'exit' or EOF)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*cfgPath, func(a *app) error {
				assistant, err := a.assistant()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				in := bufio.NewScanner(cmd.InOrStdin())
				var history []backends.Message

				for {
					fmt.Fprint(out, "> ")
					if !in.Scan() {
						fmt.Fprintln(out)
						return in.Err()
					}

					msg := strings.TrimSpace(in.Text())
					if msg == "" {
						continue
					}
					if msg == "exit" || msg == "quit" {
						return nil
					}

					res, err := assistant.Reply(cmd.Context(), history, msg)
					if err != nil {
						fmt.Fprintln(out, "error:", err)
						continue
					}

					fmt.Fprintln(out, res)
					history = append(history,
						backends.Message{Role: backends.RoleUser, Content: msg},
						backends.Message{Role: backends.RoleAssistant, Content: res},
					)
				}
			})
		},
	}
}

func newSettingsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig(*cfgPath)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})

	var model, baseURL, keyEnv string
	backendCmd := &cobra.Command{
		Use:       "backend <openai|ollama|relay>",
		Short:     "Select the chat backend and save the configuration",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{backends.KindOpenAI, backends.KindOllama, backends.KindRelay},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(*cfgPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			err = cfg.Update(func(c *Config) {
				c.Backend.Kind = args[0]
				switch args[0] {
				case backends.KindOpenAI:
					setIfChanged(flags.Changed("model"), &c.Backend.OpenAI.Model, model)
					setIfChanged(flags.Changed("base-url"), &c.Backend.OpenAI.BaseURL, baseURL)
					setIfChanged(flags.Changed("api-key-env"), &c.Backend.OpenAI.APIKeyEnv, keyEnv)
				case backends.KindOllama:
					setIfChanged(flags.Changed("model"), &c.Backend.Ollama.Model, model)
					setIfChanged(flags.Changed("base-url"), &c.Backend.Ollama.BaseURL, baseURL)
				case backends.KindRelay:
					setIfChanged(flags.Changed("model"), &c.Backend.Relay.Model, model)
					setIfChanged(flags.Changed("base-url"), &c.Backend.Relay.BaseURL, baseURL)
					setIfChanged(flags.Changed("api-key-env"), &c.Backend.Relay.APIKeyEnv, keyEnv)
				}
			})
			if err != nil {
				return err
			}

			if err := cfg.Save(*cfgPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backend set to %s\n", args[0])
			return nil
		},
	}
	backendCmd.Flags().StringVar(&model, "model", "", "Model name")
	backendCmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL")
	backendCmd.Flags().StringVar(&keyEnv, "api-key-env", "", "Environment variable holding the API key")
	cmd.AddCommand(backendCmd)

	return cmd
}

func setIfChanged(changed bool, dst *string, value string) {
	if changed {
		*dst = value
	}
}
