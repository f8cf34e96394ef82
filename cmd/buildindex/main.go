package main

import (
	"fmt"
	"os"

	"chat-risk-analysis/backend/internal/retrieval"
	"chat-risk-analysis/backend/internal/vectorindex"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "buildindex",
		Usage: "Embed reference documents into the vector index used by the analysis worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "docs",
				Aliases:  []string{"d"},
				Usage:    "Directory of .txt and .md reference documents",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Index directory to write",
				Value:   "data/vector_index",
				EnvVars: []string{"VECTOR_INDEX_PATH"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "OpenAI-compatible embedding endpoint",
				EnvVars: []string{"EMBEDDING_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   "text-embedding-3-small",
				EnvVars: []string{"EMBEDDING_MODEL"},
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of fragments per embedding request",
				Value: 64,
			},
			&cli.IntFlag{
				Name:  "min-chars",
				Usage: "Paragraphs shorter than this are merged into the next one",
				Value: 80,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Action: build,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func build(c *cli.Context) error {
	log := logger.New(logger.Config{Level: c.String("log-level"), Output: os.Stderr})

	fragments, err := vectorindex.ReadDocuments(c.String("docs"), c.Int("min-chars"))
	if err != nil {
		return err
	}
	log.Info("Documents split", "fragments", len(fragments))

	embedder, err := retrieval.NewOpenAIEmbedder(retrieval.EmbeddingConfig{
		BaseURL: c.String("embedding-host"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   c.String("embedding-model"),
	})
	if err != nil {
		return err
	}

	idx, err := vectorindex.Build(c.Context, embedder, fragments, c.Int("batch-size"), func(done int) {
		log.Info("Embedded fragments", "done", done, "total", len(fragments))
	})
	if err != nil {
		return err
	}

	out := c.String("out")
	if err := vectorindex.Save(out, idx, log); err != nil {
		return err
	}
	log.Info("Vector index written", "path", out, "fragments", idx.Size(), "dimensions", idx.Dimensions())
	return nil
}
