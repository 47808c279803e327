package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/config"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/version"
)

// cli carries the state shared by subcommands after config is loaded.
type cli struct {
	env        string
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "docqa",
		Short: "Question answering over a document corpus",
		Long: `docqa indexes a corpus of JSON, text, markdown and PDF documents into a
persistent vector index and answers questions grounded in the retrieved passages.
Without a subcommand it starts the HTTP server.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
		PersistentPostRun: func(*cobra.Command, []string) { c.sync() },
		RunE:              c.runServe,
	}
	root.PersistentFlags().StringVar(&c.env, "env", config.GetEnv(), "environment selecting config/<env>.yaml")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "explicit config file (overrides --env lookup)")

	root.AddCommand(
		c.serveCmd(),
		c.rebuildCmd(),
		c.askCmd(),
		c.statusCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	var (
		cfg config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load(c.env)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(c.env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	cmd.SetContext(logpkg.ContextWithLogger(cmd.Context(), logger))
	return nil
}

func (c *cli) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}
}

func (c *cli) rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the corpus directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.indexer.Rebuild(cmd.Context(), c.cfg.Corpus.Dir)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			cmd.Printf("Indexed %d documents into %d chunks (%d skipped) in %s\n",
				res.DocumentCount, res.ChunkCount, res.SkippedCount, res.Duration.Round(time.Millisecond))
			cmd.Printf("Build: %s\n", res.BuildID)
			return nil
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the current index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ans := a.query.Ask(cmd.Context(), args[0])
			if asJSON {
				if err := printJSON(cmd, askOutput{
					Status:    string(ans.Status()),
					Answer:    ans.Text(),
					Error:     ans.Detail(),
					ErrorKind: string(ans.Kind()),
					Sources:   len(ans.Sources()),
				}); err != nil {
					return err
				}
			} else if ans.OK() {
				cmd.Println(ans.Text())
				for _, src := range ans.Sources() {
					cmd.Printf("  - %s (%.3f)\n", src.ChunkID, src.Score)
				}
			}
			if !ans.OK() {
				return fmt.Errorf("%s: %w", ans.Kind(), errors.New(ans.Detail()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	return cmd
}

type askOutput struct {
	Status    string `json:"status"`
	Answer    string `json:"answer,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Sources   int    `json:"sources"`
}

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registerMetrics()
			index, err := openIndex(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			st := index.Stats()
			out := statusOutput{
				RAGInitialized:     st.Ready,
				DocumentCount:      st.DocumentCount,
				ChunkCount:         st.ChunkCount,
				EmbeddingDimension: st.Dimension,
				BuildID:            st.BuildID,
			}
			if st.Ready {
				out.BuiltAt = st.BuiltAt.UTC().Format(time.RFC3339)
			}
			if asJSON {
				return printJSON(cmd, out)
			}
			if !st.Ready {
				cmd.Println("Index not built")
				return nil
			}
			cmd.Printf("Index ready: %d documents, %d chunks, dimension %d\n",
				st.DocumentCount, st.ChunkCount, st.Dimension)
			cmd.Printf("Build: %s (%s)\n", st.BuildID, out.BuiltAt)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output status as JSON")
	return cmd
}

type statusOutput struct {
	RAGInitialized     bool   `json:"rag_initialized"`
	DocumentCount      int    `json:"document_count"`
	ChunkCount         int    `json:"chunk_count"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	BuildID            string `json:"build_id,omitempty"`
	BuiltAt            string `json:"built_at,omitempty"`
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version number",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("docqa %s\n", version.String())
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
