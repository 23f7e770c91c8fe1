// Server entry point: loads configuration, initializes logging, and
// runs the chat service until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"batepapo/internal/chat"
	"batepapo/internal/config"
	"batepapo/internal/logger"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "batepapo-server: %v\n", err)
	}
	os.Exit(code)
}

// run keeps the lifecycle out of main so deferred cleanup always fires
// before the process exits.
func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	logger.Init(cfg.Logging)

	log := logger.NewLogger("server")
	log.WithFields(map[string]interface{}{
		"addr":  cfg.Addr(),
		"ws":    cfg.WSAddr,
		"nats":  cfg.NatsURL != "",
		"level": cfg.Logging.Level,
	}).Info("starting batepapo")

	events := chat.ConnectEvents(cfg.NatsURL, logger.NewLogger("events"))
	defer events.Close()

	srv := chat.NewServer(cfg, logger.NewLogger("chat"), events)
	if err := srv.Start(); err != nil {
		return exitRuntime, err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s", s)

	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
