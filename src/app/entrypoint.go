package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/relstore/relstore/src"
	"github.com/relstore/relstore/src/bufferpool"
	"github.com/relstore/relstore/src/cfg"
	"github.com/relstore/relstore/src/pkg/utils"
	"github.com/relstore/relstore/src/storage/disk"
	"github.com/relstore/relstore/src/storage/systemcatalog"
	"github.com/relstore/relstore/src/txns"
)

const heapFileName = "relstore.db"

// Entrypoint assembles the engine: disk manager, parallel buffer pool,
// lock manager with its cycle detector, transaction manager and
// catalog. These are the process-scope singletons everything else
// receives by reference.
type Entrypoint struct {
	ConfigPath string

	log src.Logger
	cfg cfg.EngineConfig

	fs      afero.Fs
	disk    *disk.Manager
	pool    *bufferpool.ParallelManager
	lockMgr *txns.LockManager
	txnMgr  *txns.Manager
	catalog *systemcatalog.Catalog
}

func (e *Entrypoint) Init(ctx context.Context) error {
	env := loadEnv()

	config, err := cfg.LoadConfig(e.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if env.Environment != "" {
		config.Environment = cfg.Environment(env.Environment)
	}
	if env.DataDir != "" {
		config.DataDir = env.DataDir
	}

	e.cfg = config

	var log src.Logger
	if e.cfg.Environment == cfg.EnvDev {
		log = utils.Must(zap.NewDevelopment()).Sugar()
	} else {
		log = utils.Must(zap.NewProduction()).Sugar()
	}

	e.log = log

	e.fs = afero.NewOsFs()
	if err := e.fs.MkdirAll(e.cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	diskMgr, err := disk.New(e.fs, filepath.Join(e.cfg.DataDir, heapFileName))
	if err != nil {
		return fmt.Errorf("open disk manager: %w", err)
	}
	e.disk = diskMgr

	e.pool = bufferpool.NewParallel(e.cfg.NumInstances, e.cfg.PoolSize, diskMgr)
	e.lockMgr = txns.NewLockManager(log, e.cfg.DeadlockInterval())
	e.txnMgr = txns.NewManager(e.lockMgr)
	e.catalog = systemcatalog.New(e.pool)

	log.Infof(
		"engine initialized: %d pool instances of %d frames, data dir %s",
		e.cfg.NumInstances, e.cfg.PoolSize, e.cfg.DataDir,
	)

	return nil
}

// Run blocks until the context is cancelled.
func (e *Entrypoint) Run(ctx context.Context) error {
	e.log.Info("engine running")
	<-ctx.Done()

	return nil
}

func (e *Entrypoint) Catalog() *systemcatalog.Catalog {
	return e.catalog
}

func (e *Entrypoint) Transactions() *txns.Manager {
	return e.txnMgr
}

func (e *Entrypoint) LockManager() *txns.LockManager {
	return e.lockMgr
}

func (e *Entrypoint) Close() (err error) {
	if e.lockMgr != nil {
		e.lockMgr.Close()
	}

	if e.pool != nil {
		if flushErr := e.pool.FlushAllPages(); flushErr != nil {
			err = fmt.Errorf("flush buffer pool: %w", flushErr)
		}
	}

	if e.disk != nil {
		if closeErr := e.disk.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	if e.log != nil {
		if err != nil {
			e.log.Error("failed to close engine", zap.Error(err))
		}

		logErr := e.log.Sync()
		if logErr != nil && err != nil {
			err = fmt.Errorf("%w, %w", err, logErr)
		} else if logErr != nil {
			err = logErr
		}
	}

	return
}
