// duracache-inspect is a small offline diagnostic CLI for a duracache
// directory. There is no running server to scrape over HTTP: the cache
// directory is the only shared state, so this tool opens it directly, in
// process, the same way any other embedder would.
//
// Usage:
//
//	duracache-inspect -dir ./.duracache
//	duracache-inspect -dir ./.duracache -json
//	duracache-inspect -dir ./.duracache -watch -interval 2s
//
// © 2025 duracache authors. MIT License.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Voskan/duracache/pkg/duracache"
)

type options struct {
	dir      string
	shards   int
	gzip     bool
	json     bool
	watch    bool
	interval time.Duration
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.dir, "dir", ".duracache", "cache directory to inspect")
	flag.IntVar(&opts.shards, "shards", 16, "shard count the directory was created with")
	flag.BoolVar(&opts.gzip, "gzip", false, "whether entries were written with gzip enabled")
	flag.BoolVar(&opts.json, "json", false, "emit JSON instead of pretty text")
	flag.BoolVar(&opts.watch, "watch", false, "repeat the snapshot every -interval until interrupted")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "watch-mode polling interval")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	c, err := duracache.New[json.RawMessage](
		duracache.WithDir[json.RawMessage](opts.dir),
		duracache.WithShards[json.RawMessage](opts.shards),
		duracache.WithGzip[json.RawMessage](opts.gzip),
	)
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	if opts.watch {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			dump(c, opts.json)
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}

	dump(c, opts.json)
}

func dump(c *duracache.Cache[json.RawMessage], asJSON bool) {
	stats := c.Stats()
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return
	}
	prettyPrint(stats)
}

func prettyPrint(s duracache.Stats) {
	fmt.Printf("Hits:        %d\n", s.Hits)
	fmt.Printf("Misses:      %d\n", s.Misses)
	fmt.Printf("Hit rate:    %.1f%%\n", s.HitRate*100)
	fmt.Printf("Memory:      %d items, %.2f MiB\n", s.MemoryItems, float64(s.MemoryBytes)/(1<<20))
	fmt.Printf("Disk:        %d items, %.2f MiB\n", s.DiskItems, float64(s.DiskBytes)/(1<<20))
	fmt.Printf("Promotions:  %d\n", s.Promotions)
	fmt.Printf("Evictions:   %d\n", s.Evictions)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "duracache-inspect:", err)
	os.Exit(1)
}
