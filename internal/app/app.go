// Package app wires the sync core's components from configuration.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/medadhere/backend/internal/auth"
	"github.com/medadhere/backend/internal/config"
	"github.com/medadhere/backend/internal/crypto"
	"github.com/medadhere/backend/internal/db"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/network"
	"github.com/medadhere/backend/internal/remote"
	"github.com/medadhere/backend/internal/remote/memory"
	"github.com/medadhere/backend/internal/remote/postgres"
	"github.com/medadhere/backend/internal/remote/s3"
	"github.com/medadhere/backend/internal/services"
	syncpkg "github.com/medadhere/backend/internal/sync"
	"github.com/medadhere/backend/internal/sync/conflict"
	"github.com/medadhere/backend/internal/sync/queue"
	"github.com/medadhere/backend/internal/sync/status"
)

// App holds every long-lived component.
type App struct {
	Config       *config.Config
	KV           db.KeyValueStore
	Store        *db.RecordStore
	Queue        *queue.OfflineQueue
	Resolver     *conflict.Resolver
	Status       *status.Publisher
	Session      *auth.Session
	Network      *network.Monitor
	Remote       *remote.Adapter
	Orchestrator *syncpkg.Orchestrator
	Records      *services.RecordService

	closers []func()
}

// New builds an App. Call Close when done. On error every handle opened so
// far is released and the App is nil.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	if err := a.openLocal(ctx); err != nil {
		return err
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	var cipher *crypto.FieldCipher
	if cfg.Crypto.Secret != "" {
		if cipher, err = crypto.NewFieldCipher(cfg.Crypto.Secret); err != nil {
			return fmt.Errorf("field cipher: %w", err)
		}
	} else {
		logging.Warn("Field encryption disabled, no crypto secret configured", nil)
	}

	key := []byte(cfg.Auth.JWTKey)
	if len(key) == 0 {
		key, err = randomKey()
		if err != nil {
			return err
		}
		logging.Warn("No JWT key configured, using an ephemeral key", nil)
	}

	a.Session = auth.NewSession(key)
	a.Network = network.NewMonitor(true)
	a.Store = db.NewRecordStore(a.KV)
	a.Queue = queue.New(a.KV)
	a.Resolver = conflict.NewResolver()
	a.Status = status.NewPublisher(a.KV)
	a.Remote = remote.NewAdapter(backend, a.Session, cipher)

	a.Orchestrator, err = syncpkg.New(syncpkg.Deps{
		Store:    a.Store,
		Queue:    a.Queue,
		Remote:   a.Remote,
		Resolver: a.Resolver,
		Status:   a.Status,
		Session:  a.Session,
		Network:  a.Network,
	}, cfg.Sync.Orchestrator())
	if err != nil {
		return err
	}
	a.Records = services.NewRecordService(a.Store, a.Orchestrator, a.Network)

	logging.Info("Application initialized", map[string]interface{}{
		"remoteBackend": cfg.Remote.Backend,
		"dataDir":       cfg.Data.Dir,
		"encryption":    cipher != nil,
	})
	return nil
}

func (a *App) openLocal(ctx context.Context) error {
	if a.Config.Data.Dir == "" {
		a.KV = db.NewMemoryKV()
		return nil
	}
	local, err := db.Open(a.Config.Data.Dir)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = local.Close() })
	if err := db.Migrate(ctx, local); err != nil {
		return err
	}
	a.KV = db.NewSQLiteKV(local)
	return nil
}

func (a *App) openBackend(ctx context.Context) (remote.Backend, error) {
	rc := a.Config.Remote
	switch rc.Backend {
	case config.BackendPostgres:
		if err := postgres.Migrate(ctx, rc.DSN); err != nil {
			return nil, err
		}
		pool, err := postgres.New(ctx, rc.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return postgres.NewBackend(pool), nil

	case config.BackendS3:
		client, err := s3.NewClient(ctx, rc.S3)
		if err != nil {
			return nil, err
		}
		return s3.NewBackend(client, rc.S3.Bucket, rc.S3.Prefix), nil

	default:
		return memory.New(), nil
	}
}

// Start begins background synchronization.
func (a *App) Start() {
	a.Orchestrator.Start()
}

// Close stops the orchestrator and releases storage handles.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func randomKey() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}
