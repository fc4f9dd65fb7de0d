// The kipx binary is the command line client: one-shot and interactive
// patent search, CSV export and the assignee directory, straight against
// the configured backends.
package main

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-Explorer/internal/interfaces/cli"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// Build metadata, injected via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	deps := cli.CommandDependencies{Connect: connectStack}
	if err := cli.Execute(deps); err != nil {
		os.Exit(1)
	}
}

// connectStack dials the backend selected by search.backend and assembles
// the command stack over it. The object store is wrapped lazily so search
// and assignee runs never wait on a MinIO dial.
func connectStack(cmd *cobra.Command) (*cli.Stack, func(), error) {
	cliCtx, err := cli.GetCLIContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, logger := cliCtx.Config, cliCtx.Logger
	ctx := cmd.Context()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	stack := &cli.Stack{
		Search: search.NewService(store, logger),
		Engine: export.NewEngine(store, logger),
	}
	if cfg.MinIO.Endpoint != "" {
		stack.Files = &lazyFileStore{cfg: cfg.MinIO, logger: logger}
	}
	return stack, cleanup, nil
}

// openStore connects the configured patent store and returns it with its
// cleanup.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (patent.Store, func(), error) {
	switch cfg.Search.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool, nil, logger), pool.Close, nil

	case config.BackendOpenSearch:
		client, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger)
		if err != nil {
			return nil, nil, err
		}
		return opensearch.NewStore(client, cfg.OpenSearch, nil, logger), func() {}, nil

	default:
		return nil, nil, errors.Newf(errors.CodeInvalidParam, "unknown search backend %q", cfg.Search.Backend)
	}
}

// lazyFileStore defers the MinIO dial to the first Save, so only uploads pay
// for it. The first dial's outcome is kept for the life of the process.
type lazyFileStore struct {
	cfg    config.MinIOConfig
	logger logging.Logger

	once  sync.Once
	store *minio.ArtifactStore
	err   error
}

var _ export.FileStore = (*lazyFileStore)(nil)

func (l *lazyFileStore) Save(ctx context.Context, filename string, data []byte) (string, error) {
	l.once.Do(func() {
		client, err := minio.NewClient(ctx, l.cfg, l.logger)
		if err != nil {
			l.err = err
			return
		}
		l.store = minio.NewArtifactStore(client, l.cfg, nil, l.logger)
		l.err = l.store.EnsureBucket(ctx)
	})
	if l.err != nil {
		return "", l.err
	}
	return l.store.Save(ctx, filename, data)
}
