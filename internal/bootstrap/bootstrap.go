// Package bootstrap wires one repository's full dependency graph (store,
// plugin registry, the optional vector pipeline, the dispatcher and
// indexing engine, and the facade that exposes spec.md §6.1's five
// operations) so that cmd/codalex and cmd/codalexd share a single
// construction path instead of each duplicating it.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brindle-dev/codalex/internal/config"
	"github.com/brindle-dev/codalex/internal/dispatcher"
	"github.com/brindle-dev/codalex/internal/facade"
	"github.com/brindle-dev/codalex/internal/gitignore"
	"github.com/brindle-dev/codalex/internal/identity"
	"github.com/brindle-dev/codalex/internal/index"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/rerank"
	"github.com/brindle-dev/codalex/internal/store"
	"github.com/brindle-dev/codalex/internal/vector"
)

// App is one repository's opened dependency graph. Every codalex
// subcommand and codalexd's daemon loop build one of these against the
// discovered project root and tear it down on exit.
type App struct {
	Cfg          *config.Config
	Store        store.Store
	Plugins      *plugin.Registry
	Vectors      vector.Store
	Embedder     vector.Provider
	Index        *index.Engine
	Dispatcher   *dispatcher.Dispatcher
	Facade       *facade.Facade
	RepositoryID string
	RepoRoot     string
	DataDir      string
}

// Open discovers the project root starting at dir, loads its config, and
// builds the dependency graph described above. Close must be called when
// done.
func Open(ctx context.Context, dir string) (*App, error) {
	root, err := config.FindProjectRoot(dir)
	if err != nil {
		root, err = filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	repositoryID, err := identity.RepositoryID(root)
	if err != nil {
		return nil, fmt.Errorf("resolve repository id: %w", err)
	}

	dataDir := filepath.Join(root, ".codalex")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(ctx, dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry, err := plugin.NewRegistry(plugin.DefaultFactories(), plugin.NewFallback())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build plugin registry: %w", err)
	}

	ignore := gitignore.New()
	for _, pattern := range cfg.Paths.Exclude {
		ignore.AddPattern(pattern)
	}
	if err := ignore.AddFromFile(filepath.Join(root, ".gitignore"), root); err != nil && !os.IsNotExist(err) {
		_ = st.Close()
		registry.Close()
		return nil, fmt.Errorf("load .gitignore: %w", err)
	}

	vectors, embedder, pipeline := buildVectorStack(cfg, dataDir)
	if err := vectors.Load(dataDir); err != nil && !os.IsNotExist(err) {
		_ = st.Close()
		registry.Close()
		return nil, fmt.Errorf("load vector store: %w", err)
	}

	eng := index.New(index.Deps{
		Store:   st,
		Plugins: registry,
		Vectors: pipeline,
		Hashes:  identity.NewHashCache(4096),
		Ignore:  ignore,
	}, index.Config{
		MaxFileSize:  index.DefaultMaxFileSize,
		ParseTimeout: index.DefaultParseTimeout,
		Workers:      cfg.Performance.IndexWorkers,
	})

	disp := dispatcher.New(st, vectors, embedder, rerank.TFIDF{})

	f := facade.New(facade.Deps{
		Dispatcher:   disp,
		Index:        eng,
		Store:        st,
		Plugins:      registry,
		Vectors:      vectors,
		Embedder:     embedder,
		RepositoryID: repositoryID,
		RepoRoot:     root,
	})

	return &App{
		Cfg:          cfg,
		Store:        st,
		Plugins:      registry,
		Vectors:      vectors,
		Embedder:     embedder,
		Index:        eng,
		Dispatcher:   disp,
		Facade:       f,
		RepositoryID: repositoryID,
		RepoRoot:     root,
		DataDir:      dataDir,
	}, nil
}

// Close persists the vector store and releases the store's process lock.
func (a *App) Close() error {
	var errs []string
	if err := a.Vectors.Save(a.DataDir); err != nil {
		errs = append(errs, err.Error())
	}
	a.Plugins.Close()
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close app: %s", strings.Join(errs, "; "))
	}
	return nil
}

// buildVectorStack builds the embedding provider and vector store named
// by cfg.Embeddings.Provider. An empty provider auto-detects: Ollama if
// reachable, Static otherwise.
func buildVectorStack(cfg *config.Config, dataDir string) (vector.Store, vector.Provider, *vector.Pipeline) {
	var embedder vector.Provider

	switch strings.ToLower(cfg.Embeddings.Provider) {
	case "static":
		embedder = vector.StaticProvider{}
	case "ollama":
		embedder = vector.NewOllamaProvider(vector.OllamaConfig{
			Host:  cfg.Embeddings.OllamaHost,
			Model: cfg.Embeddings.Model,
		})
	default:
		host := cfg.Embeddings.OllamaHost
		if host == "" {
			host = vector.DefaultOllamaHost
		}
		if ollamaReachable(host) {
			embedder = vector.NewOllamaProvider(vector.OllamaConfig{
				Host:  host,
				Model: cfg.Embeddings.Model,
			})
		} else {
			embedder = vector.StaticProvider{}
		}
	}

	vectors := vector.NewHNSWStore()
	pipeline := vector.NewPipeline(vectors, embedder)
	return vectors, embedder, pipeline
}

// ollamaReachable probes host's /api/tags endpoint before trusting a
// local Ollama instance.
func ollamaReachable(host string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
