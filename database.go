package mongolite

import (
	"context"

	"github.com/madhouselabs/mongolite/internal/config"
	"github.com/madhouselabs/mongolite/internal/sqlengine"
)

// Database is a handle to one SQLite-backed document store. It owns
// the engine connection and the change-stream poller shared by every
// collection and every Watch() opened against it (§4.I).
type Database struct {
	engine  *sqlengine.Engine
	streams *streamManager
	cfg     *config.Config
}

// Connect opens (or creates) the SQLite file at cfg.Database.Path. Pass
// ":memory:" for an ephemeral database — the pattern this module's own
// tests use.
func Connect(ctx context.Context, cfg *config.Config) (*Database, error) {
	engine, err := sqlengine.Open(ctx, cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		return nil, wrapEngineErr("connect", err)
	}
	return &Database{
		engine:  engine,
		streams: newStreamManager(engine, cfg.ChangeStream),
		cfg:     cfg,
	}, nil
}

// Close stops the change-stream poller, closes every open subscription,
// and releases the underlying SQLite handle.
func (d *Database) Close() error {
	d.streams.close()
	return d.engine.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return wrapEngineErr("ping", d.engine.Ping(ctx))
}

// Collection returns a handle to the named collection, creating its
// backing table and change-log triggers on first use (§4.F, §4.I).
func (d *Database) Collection(ctx context.Context, name string) (*Collection, error) {
	if err := d.engine.EnsureCollection(ctx, name); err != nil {
		return nil, err
	}
	return &Collection{name: name, engine: d.engine, streams: d.streams, queueCapacity: d.cfg.ChangeStream.QueueCapacity}, nil
}

// ListCollections returns the name of every collection with a backing
// table, in no particular order.
func (d *Database) ListCollections(ctx context.Context) ([]string, error) {
	names, err := d.engine.ListCollections(ctx)
	if err != nil {
		return nil, wrapEngineErr("list collections", err)
	}
	return names, nil
}

// DropCollection removes a collection's table, its indexes and its
// triggers. Dropping a collection that doesn't exist is not an error.
func (d *Database) DropCollection(ctx context.Context, name string) error {
	return wrapEngineErr("drop collection", d.engine.DropCollection(ctx, name))
}

// Watch opens a database-wide change stream across every collection.
func (d *Database) Watch(ctx context.Context, opts WatchOptions) (*Subscription, error) {
	return d.streams.watch(ctx, "", opts, d.cfg.ChangeStream.QueueCapacity)
}
