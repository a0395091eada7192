// Copyright 2015 Google Inc. All Rights Reserved.
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

// Command mmapcache-bench drives a Cache against a synthetic file with a
// configurable read workload, for manual soak testing of the window
// allocation, recycling, and bus-fault recovery paths outside of `go test`.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/reqtrace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/journalcache/mmapcache"
	"github.com/journalcache/mmapcache/internal/mmapio"
)

var log = logrus.WithField("component", "mmapcache-bench")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mmapcache-bench",
		Short: "Soak-test the mmap window cache against a synthetic file",
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.String("file", "", "path to the backing file (created if absent; required)")
	flags.Int64("file-size", 256<<20, "size in bytes to allocate for a newly created backing file")
	flags.Int64("window-size", mmapcache.DefaultWindowSize, "window size in bytes")
	flags.Int("windows-min", mmapcache.WindowsMin, "soft floor on live windows before recycling kicks in")
	flags.Int("max-contexts", mmapcache.MaxContexts, "number of context slots to cycle through")
	flags.Int("iterations", 10000, "number of Get calls to issue")
	flags.Int64("read-size", 4096, "bytes requested per Get call")
	flags.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090) for the run's duration")
	flags.Bool("debug", false, "enable debug-level logging")
	flags.Bool("sequential", false, "walk the file sequentially instead of uniformly at random")
	cmd.MarkFlagRequired("file")

	viper.BindPFlags(flags)
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if viper.GetBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	path := viper.GetString("file")
	size := viper.GetInt64("file-size")
	f, err := openOrCreateBackingFile(path, size)
	if err != nil {
		return fmt.Errorf("backing file: %w", err)
	}
	defer f.Close()

	mmapcache.EnablePanicOnFault()
	watcher := mmapcache.NewSIGBUSWatcher(log)
	watcher.Start()
	defer watcher.Stop()

	c := mmapcache.New(
		mmapcache.WithLogger(log),
		mmapcache.WithWindowSize(viper.GetInt64("window-size")),
		mmapcache.WithWindowsMin(viper.GetInt("windows-min")),
		mmapcache.WithMaxContexts(viper.GetInt("max-contexts")),
	)
	defer c.Close()

	var stopMetrics func(context.Context) error
	if addr := viper.GetString("metrics-addr"); addr != "" {
		stopMetrics = serveMetrics(addr, c.Collector())
		defer stopMetrics(context.Background())
	}

	h := c.AddFD(int(f.Fd()), mmapio.ProtReadWrite)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := workload(ctx, c, h, size); err != nil {
		return err
	}

	c.StatsLog()
	return nil
}

// workload issues the configured number of Get calls, each wrapped in its
// own reqtrace span so a trace consumer can see per-request window-cache
// behavior the same way fuseops wraps each filesystem op.
func workload(ctx context.Context, c *mmapcache.Cache, h *mmapcache.FileHandle, fileSize int64) error {
	iterations := viper.GetInt("iterations")
	readSize := viper.GetInt64("read-size")
	maxContexts := viper.GetInt("max-contexts")
	sequential := viper.GetBool("sequential")

	rng := rand.New(rand.NewSource(1))
	var cursor int64

	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			log.Warn("interrupted; stopping early")
			return nil
		default:
		}

		var offset int64
		if sequential {
			offset = cursor
			cursor += readSize
			if cursor >= fileSize {
				cursor = 0
			}
		} else {
			offset = rng.Int63n(fileSize - readSize)
		}

		_, report := reqtrace.StartSpan(ctx, fmt.Sprintf("get #%d", i))

		contextID := i % maxContexts
		_, err := c.Get(h, contextID, false, offset, readSize, &fileSize)
		report(err)
		if err != nil {
			if c.GotSIGBUS(h) {
				log.WithField("iteration", i).Warn("file poisoned by bus fault; skipping remaining reads against it")
				return nil
			}
			return fmt.Errorf("get at offset %d: %w", offset, err)
		}

		if i%1000 == 0 {
			log.WithField("iteration", i).WithField("stats", c.Stats()).Debug("progress")
		}
	}

	return nil
}

// openOrCreateBackingFile opens path for reading and writing, creating and
// pre-allocating it with syscall.Fallocate if it does not already exist,
// the way perkeep's diskpacked store pre-sizes its pack files.
func openOrCreateBackingFile(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	if err := syscall.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		f.Close()
		return nil, fmt.Errorf("fallocate: %w", err)
	}

	log.WithField("path", path).WithField("size", size).Info("created backing file")
	return f, nil
}

func serveMetrics(addr string, collectors ...prometheus.Collector) func(context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")

	return srv.Shutdown
}
