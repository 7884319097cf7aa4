package main

import (
	"fmt"
	"os"
	"path/filepath"

	"vellum/hangar"
	"vellum/hangar/bolt"
	"vellum/hangar/cache"
	"vellum/hangar/db"
	"vellum/hangar/mem"
	"vellum/hangar/pebble"

	cpebble "github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

const cacheAvgEntrySize = 512

type StoreArgs struct {
	Store   string `arg:"--store,env:STORE" default:"badger" help:"badger, pebble, bolt or mem"`
	DataDir string `arg:"--data-dir,env:DATA_DIR" default:"./data"`
	// BlockCacheMB sizes the badger block cache.
	BlockCacheMB int64 `arg:"--block-cache-mb,env:BLOCK_CACHE_MB" default:"256"`
	// CacheMB puts a point read cache of this size in front of the store.
	CacheMB uint64 `arg:"--cache-mb,env:CACHE_MB" default:"0"`
}

func openStore(args StoreArgs) (hangar.Store, error) {
	var (
		store hangar.Store
		err   error
	)
	switch args.Store {
	case "mem":
		store = mem.NewHangar()
	case "badger":
		store, err = db.NewHangar(args.DataDir, args.BlockCacheMB<<20)
	case "pebble":
		store, err = pebble.NewHangar(args.DataDir, &cpebble.Options{})
	case "bolt":
		if err = os.MkdirAll(args.DataDir, 0o755); err == nil {
			store, err = bolt.NewHangar(filepath.Join(args.DataDir, "vellum.db"))
		}
	default:
		return nil, fmt.Errorf("unknown store %q", args.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store in %s: %w", args.Store, args.DataDir, err)
	}
	if args.CacheMB == 0 {
		return store, nil
	}
	cached, err := cache.NewHangar(store, args.CacheMB<<20, cacheAvgEntrySize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	zap.L().Info("caching point reads", zap.Uint64("size_mb", args.CacheMB))
	return cached, nil
}
