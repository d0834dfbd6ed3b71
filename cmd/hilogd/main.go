// Command hilogd launches the log daemon: it wires configuration into a
// log buffer, an ingest pipeline, the persister dispatcher, and an
// optional live-tail HTTP listener, then blocks until shut down.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiviewdfx/hilogd/internal/config"
	"github.com/hiviewdfx/hilogd/internal/control"
	"github.com/hiviewdfx/hilogd/internal/ingest"
	"github.com/hiviewdfx/hilogd/internal/livetail"
	"github.com/hiviewdfx/hilogd/internal/log"
	"github.com/hiviewdfx/hilogd/internal/logbuffer"
	"github.com/hiviewdfx/hilogd/internal/persist"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "hilogd",
		Short: "hilogd is the device-side system log daemon",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "/etc/hilogd/hilogd.yaml", "path to the daemon's YAML configuration file")

	if err := root.Execute(); err != nil {
		log.Fatal("%v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		log.Fatal("failed to read configuration file %s: %v", configPath, err)
	}

	var cfg config.Config
	if err := cfg.Parse(data); err != nil {
		log.Fatal("failed to parse configuration file %s: %v", configPath, err)
	}

	buf := logbuffer.New(cfg.DefaultBufferSize)
	for _, bs := range cfg.BufferSizes {
		t, err := config.ParseLogType(bs.Type)
		if err != nil {
			continue
		}
		buf.SetBuffLen(t, bs.Size)
	}

	dispatcher := persist.NewDispatcher(buf)
	surface := control.New(buf, dispatcher)

	for _, p := range cfg.Persisters {
		mask, err := config.TypesToMask(p.Types)
		if err != nil {
			log.Error("skipping persister %d: %v", p.ID, err)
			continue
		}
		alg, err := config.ParseCompressAlg(p.CompressAlg)
		if err != nil {
			log.Error("skipping persister %d: %v", p.ID, err)
			continue
		}
		_, err = surface.StartPersist(persist.Config{
			ID:          p.ID,
			Path:        p.Path,
			CompressAlg: alg,
			FileSize:    p.FileSize,
			FileNum:     p.FileNum,
			SleepTime:   p.SleepTime,
			Condition:   reader.Condition{Types: mask, Levels: reader.AllLevelsMask},
		})
		if err != nil {
			log.Error("failed to start persister %d: %v", p.ID, err)
			continue
		}
	}

	pipeline := ingest.New(buf)
	go pipeline.Run()

	catalog := livetail.NewCatalog()
	if cfg.LiveTailAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/tail", livetail.Handler(buf, catalog))
		go func() {
			log.Info("livetail listening on %s", cfg.LiveTailAddr)
			if err := http.ListenAndServe(cfg.LiveTailAddr, mux); err != nil {
				log.Error("livetail listener stopped: %v", err)
			}
		}()
	}

	log.Info("hilogd started, socket=%s", cfg.SocketPath)
	waitForShutdown(dispatcher, pipeline)
	return nil
}

func waitForShutdown(dispatcher *persist.Dispatcher, pipeline *ingest.Pipeline) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			log.Info("dumping goroutine stacks due to SIGUSR1")
			pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
		case syscall.SIGINT, syscall.SIGTERM:
			log.Info("initiating graceful shutdown")
			pipeline.Close()
			dispatcher.KillAll()
			time.Sleep(100 * time.Millisecond)
			log.Sync()
			return
		}
	}
}
