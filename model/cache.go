package model

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
)

// Cache stores generator responses keyed by namespace, prompt and parameters.
type Cache struct {
	db     *badger.DB
	logger log.Logger
}

// OpenCache opens a response cache in dir, creating it if needed.
// An empty dir opens an in-memory cache.
func OpenCache(dir string, logger log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.Default
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open response cache: %w", err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Wrap returns a Generator answering from the cache when possible and storing
// new responses. namespace separates models sharing one cache.
func (c *Cache) Wrap(namespace string, gen Generator) Generator {
	return &cachedGenerator{cache: c, namespace: namespace, gen: gen}
}

func (c *Cache) get(key []byte) (string, bool, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

func (c *Cache) set(key []byte, value string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(value))
	})
}

type cachedGenerator struct {
	cache     *Cache
	namespace string
	gen       Generator
}

func (g *cachedGenerator) Generate(ctx context.Context, messages api.Messages, params api.Params) (string, error) {
	key, err := cacheKey(g.namespace, messages, params)
	if err != nil {
		return "", err
	}

	if out, ok, err := g.cache.get(key); err != nil {
		g.cache.logger.Warnf("response cache read failed: %v", err)
	} else if ok {
		return out, nil
	}

	out, err := g.gen.Generate(ctx, messages, params)
	if err != nil {
		return "", err
	}
	if err := g.cache.set(key, out); err != nil {
		g.cache.logger.Warnf("response cache write failed: %v", err)
	}
	return out, nil
}

// cacheKey hashes the request. json.Marshal sorts map keys, so equal params
// give equal keys.
func cacheKey(namespace string, messages api.Messages, params api.Params) ([]byte, error) {
	payload, err := json.Marshal(struct {
		Namespace string       `json:"ns"`
		Messages  api.Messages `json:"messages"`
		Params    api.Params   `json:"params"`
	}{namespace, messages, params})
	if err != nil {
		return nil, fmt.Errorf("failed to build cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return sum[:], nil
}

// badgerLogger routes badger's internal logging to the evalkit logger.
type badgerLogger struct {
	logger log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }
