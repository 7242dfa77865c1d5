// Package storage opens the credential store selected by the configuration.
package storage

import (
	"context"
	"io"

	"code.autosig.org/golang/internal/config"
	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/credentials/boltdb"
	"code.autosig.org/golang/pkg/credentials/pgdb"
	"code.autosig.org/golang/pkg/credentials/sqlitedb"
)

// Store is an opened credentials.CredStore.
type Store struct {
	credentials.CredStore
	driver string
	closer func() error
}

// Open returns the Store configured by cfg.
// If rebuild is true, the existing accounts are dropped and the store schema is recreated.
func Open(ctx context.Context, cfg config.StoreConfig, rebuild bool) (*Store, error) {
	log := observability.GetObservability(ctx).Log().With("driver", cfg.Driver)

	var rv *Store
	var err error
	switch cfg.Driver {
	case config.DriverMemory:
		rv = &Store{CredStore: credentials.NewMemCredStore()}
	case config.DriverPostgres:
		rv, err = openPostgres(ctx, cfg, rebuild)
	case config.DriverSQLite:
		rv, err = openSQLite(cfg, rebuild)
	case config.DriverBolt:
		rv, err = openBolt(ctx, cfg, rebuild)
	default:
		return nil, newError("unsupported store driver %q", cfg.Driver)
	}
	if nil != err {
		return nil, wrapError(err, "failed opening %s store", cfg.Driver)
	}
	rv.driver = cfg.Driver
	if rebuild {
		log.Warn("rebuilt credential store, all accounts dropped")
	}
	log.Info("opened credential store")

	return rv, nil
}

func openPostgres(ctx context.Context, cfg config.StoreConfig, rebuild bool) (*Store, error) {
	store, err := pgdb.NewCredStore(ctx, cfg.Dsn, cfg.Schema)
	if nil != err {
		return nil, err
	}
	if rebuild {
		err = pgdb.Rebuild(ctx, store.DB, cfg.Schema)
		if nil != err {
			store.Close()
			return nil, err
		}
	}
	closer := func() error {
		store.Close()
		return nil
	}

	return &Store{CredStore: store, closer: closer}, nil
}

func openSQLite(cfg config.StoreConfig, rebuild bool) (*Store, error) {
	db, err := sqlitedb.NewDB(cfg.Dsn)
	if nil != err {
		return nil, err
	}
	store, err := sqlitedb.NewCredStore(db)
	if nil != err {
		db.Close()
		return nil, err
	}
	if rebuild {
		err = sqlitedb.Rebuild(db.Writer)
		if nil != err {
			store.Close()
			return nil, err
		}
	}

	return &Store{CredStore: store, closer: store.Close}, nil
}

func openBolt(ctx context.Context, cfg config.StoreConfig, rebuild bool) (*Store, error) {
	store, err := boltdb.New(cfg.Dsn)
	if nil != err {
		return nil, err
	}
	if rebuild {
		err = store.Reset(ctx)
		if nil != err {
			store.Close()
			return nil, err
		}
	}

	return &Store{CredStore: store, closer: store.Close}, nil
}

// Driver returns the name of the Store driver.
func (self *Store) Driver() string {
	return self.driver
}

// Stats returns the number of accounts of each kind.
func (self *Store) Stats(ctx context.Context) (map[credentials.AccountKind]int, error) {
	rv := make(map[credentials.AccountKind]int, len(credentials.Kinds))
	for _, kind := range credentials.Kinds {
		count, err := self.RecordCount(ctx, kind)
		if nil != err {
			return nil, wrapError(err, "failed counting %s accounts", kind)
		}
		rv[kind] = count
	}
	return rv, nil
}

// Close releases the Store resources.
func (self *Store) Close() error {
	if nil == self.closer {
		return nil
	}
	return wrapError(self.closer(), "failed closing %s store", self.driver)
}

var _ io.Closer = &Store{}
