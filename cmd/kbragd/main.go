// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command kbragd is the RAG service CLI: load configuration, wire every
// pipeline stage, and serve spec §6's HTTP interface.
//
// Usage:
//
//	kbragd serve --config config.yaml
//	kbragd serve --source-path ./docs --port 8080
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbrag/kbrag/internal/cache"
	"github.com/kbrag/kbrag/internal/chunk"
	"github.com/kbrag/kbrag/internal/config"
	"github.com/kbrag/kbrag/internal/embed"
	"github.com/kbrag/kbrag/internal/extract"
	"github.com/kbrag/kbrag/internal/generate"
	"github.com/kbrag/kbrag/internal/httpapi"
	"github.com/kbrag/kbrag/internal/keywordindex"
	"github.com/kbrag/kbrag/internal/obslog"
	"github.com/kbrag/kbrag/internal/orchestrator"
	"github.com/kbrag/kbrag/internal/retrieve"
	"github.com/kbrag/kbrag/internal/vectorindex"
	"github.com/kbrag/kbrag/internal/web"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve  ServeCmd `cmd:"" help:"Start the RAG HTTP service."`
	Config string   `short:"c" help:"Path to config file." type:"path"`
}

// ServeCmd starts the HTTP service built from the full pipeline.
type ServeCmd struct {
	SourcePath string `name:"source-path" help:"Directory to ingest at startup, if set." type:"path"`
	Port       int    `help:"Port to listen on (overrides config)."`
	Watch      bool   `help:"Watch source-path for changes and re-ingest (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.SourcePath != "" {
		cfg.Orchestrator.SourcePath = c.SourcePath
	}
	if c.Watch {
		cfg.Orchestrator.Watch = true
	}

	level, err := obslog.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return err
	}
	output := os.Stderr
	if cfg.Logger.File != "" {
		f, cleanup, err := obslog.OpenLogFile(cfg.Logger.File)
		if err != nil {
			return err
		}
		defer cleanup()
		output = f
	}
	obslog.Init(level, output, cfg.Logger.Format)

	orch, reg, err := buildOrchestrator(cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	srv := httpapi.New(cfg.Server.Addr(), orch, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Orchestrator.SourcePath != "" {
		go func() {
			report, err := orch.IngestDirectory(ctx, cfg.Orchestrator.SourcePath, "*.md")
			if err != nil {
				slog.Error("startup ingest failed", "error", err)
				return
			}
			slog.Info("startup ingest complete",
				"new", report.New, "changed", report.Changed,
				"unchanged", report.Unchanged, "errors", report.Errors,
				"chunks", report.TotalChunks)
		}()

		if cfg.Orchestrator.Watch {
			watcher, err := orchestrator.NewFileWatcher(orch, cfg.Orchestrator.SourcePath, "*.md")
			if err != nil {
				return fmt.Errorf("file watcher: %w", err)
			}
			go func() {
				if err := watcher.Start(ctx); err != nil {
					slog.Error("directory watch failed", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("kbragd listening", "addr", cfg.Server.Addr())
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// buildOrchestrator wires every pipeline stage per spec §4.12, grounded on
// cmd/hector's component.NewComponentManager wiring shape: one constructor
// per stage, assembled bottom-up into the Orchestrator.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *prometheus.Registry, error) {
	extractor := extract.New()
	chunker := chunk.New(chunk.DefaultConfig())

	localBackend := embed.NewOllamaBackend(embed.OllamaConfig{
		BaseURL: cfg.Embedder.LocalBaseURL,
		Model:   cfg.Embedder.LocalModel,
	})

	premiums := map[string]embed.Backend{}
	if cfg.Embedder.PremiumAPIKey != "" {
		openaiBackend, err := embed.NewOpenAIBackend(embed.OpenAIConfig{
			APIKey:  cfg.Embedder.PremiumAPIKey,
			BaseURL: cfg.Embedder.PremiumBaseURL,
			Model:   cfg.Embedder.PremiumModel,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("premium embedder: %w", err)
		}
		premiums["openai"] = openaiBackend
	}
	if apiKey := os.Getenv("COHERE_API_KEY"); apiKey != "" {
		cohereBackend, err := embed.NewCohereBackend(embed.CohereConfig{APIKey: apiKey})
		if err != nil {
			return nil, nil, fmt.Errorf("cohere embedder: %w", err)
		}
		premiums["cohere"] = cohereBackend
	}

	embedder := embed.NewService(localBackend, premiums, cfg.Embedder.QueryEmbedderType)
	for key := range premiums {
		path := cfg.AlignmentMatrixPath(key)
		alignment, err := embed.LoadAlignmentFile(path)
		if err != nil {
			slog.Warn("no alignment matrix loaded, query embedding falls back to the local model", "backend", key, "path", path)
			continue
		}
		embedder.LoadAlignment(key, alignment)
	}

	vector, err := buildVectorProvider(cfg.Vector)
	if err != nil {
		return nil, nil, fmt.Errorf("vector index: %w", err)
	}

	keyword, err := keywordindex.New(cfg.Keyword.IndexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("keyword index: %w", err)
	}

	twoStep := retrieve.NewTwoStepRetriever(embedder, vector, orchestrator.DocumentCollection)

	var webSearcher retrieve.WebSearcher
	var webKB retrieve.WebKBSearcher
	if cfg.WebSearch.Enabled {
		articleExtractor := web.NewReadabilityExtractor(cfg.WebSearch.FetchTimeout)
		snippetProvider := web.NewDuckDuckGoProvider(cfg.WebSearch.FetchTimeout)
		trust := web.DefaultTrustConfig()
		trust.TrustedSuffixes = append(trust.TrustedSuffixes, cfg.WebSearch.TrustedDomains...)
		provider := web.NewProvider(articleExtractor, snippetProvider, trust, cfg.WebSearch.MaxQueriesPerMinute)
		webSearcher = web.NewRetrieverAdapter(provider)

		kbCfg := web.DefaultKnowledgeBaseConfig()
		kbCfg.TTLDays = cfg.WebKB.TTLDays
		kbCfg.MaxSize = cfg.WebKB.MaxSize
		webKB = web.NewKnowledgeBase(vector, embedder, kbCfg)
	}

	hybrid := retrieve.NewHybridRetriever(twoStep, keyword, webKB, webSearcher)

	llm := generate.NewOllamaLLM(cfg.Generator.Model, cfg.Embedder.LocalBaseURL, 0)
	hybrid.SetHyDE(retrieve.NewHyDE(llm))
	hybrid.SetQueryExpander(retrieve.NewLLMQueryExpander(llm))

	genCfg := generate.DefaultConfig()
	genCfg.Model = cfg.Generator.Model
	if cfg.Generator.MaxContextTokens > 0 {
		genCfg.MaxContextTokens = cfg.Generator.MaxContextTokens
	}
	generator := generate.NewGenerator(llm, genCfg)

	var semCache *cache.SemanticCache
	if cfg.Cache.Host != "" {
		opts := &redis.Options{Addr: fmt.Sprintf("%s:%d", cfg.Cache.Host, cfg.Cache.Port)}
		semCache = cache.NewSemanticCache(context.Background(), opts, cache.Config{
			TTL:                 cfg.Cache.TTL,
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		})
	}

	reg := prometheus.NewRegistry()
	metrics := obslog.NewRegistry(reg)

	orch := orchestrator.New(extractor, chunker, embedder, vector, keyword, hybrid, generator, semCache, metrics, orchestrator.Config{
		MaxConcurrentIndexing: cfg.Orchestrator.MaxConcurrentIndexing,
		EnableCheckpoints:     cfg.Orchestrator.EnableCheckpoints,
		CheckpointDir:         cfg.Orchestrator.CheckpointDir,
	})

	return orch, reg, nil
}

func buildVectorProvider(cfg config.VectorConfig) (vectorindex.Provider, error) {
	vcfg := &vectorindex.Config{Type: vectorindex.ProviderType(cfg.Provider)}
	vcfg.SetDefaults()

	if vcfg.Type == vectorindex.ProviderQdrant {
		host, port := splitHostPort(cfg.URL, 6334)
		vcfg.Qdrant = &vectorindex.QdrantConfig{Host: host, Port: port, APIKey: cfg.APIKey}
	}
	if err := vcfg.Validate(); err != nil {
		return nil, err
	}
	return vectorindex.New(vcfg)
}

// splitHostPort parses a "host:port" string, falling back to the default
// port when absent so a bare hostname in config is still usable.
func splitHostPort(addr string, defaultPort int) (string, int) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port, err := strconv.Atoi(addr[i+1:])
			if err != nil || port == 0 {
				return addr[:i], defaultPort
			}
			return addr[:i], port
		}
	}
	return addr, defaultPort
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("kbragd"),
		kong.Description("kbrag - retrieval-augmented generation service"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
