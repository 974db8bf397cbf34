package service

import (
	"os"
	"os/signal"
	"syscall"

	"servicectl/internal/logger"
)

// Replaced in tests.
var (
	signalNotify = signal.Notify
	signalStop   = signal.Stop
)

// stopSignals are the termination signals that stop a running service.
// A console break (Ctrl+Break) arrives as os.Interrupt on Windows.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

func (r *Runtime) subscribeSignalsLocked() {
	ch := make(chan os.Signal, len(stopSignals))
	done := make(chan struct{})
	r.notify(ch, stopSignals...)
	r.sigCh, r.sigDone = ch, done

	go func() {
		log := logger.WithComponent("service-runtime")
		for {
			select {
			case sig := <-ch:
				log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
				r.beginStop("signal " + sig.String())
			case <-done:
				return
			}
		}
	}()
}

func (r *Runtime) unsubscribeSignalsLocked() {
	if r.sigCh == nil {
		return
	}
	r.stopNotify(r.sigCh)
	close(r.sigDone)
	r.sigCh, r.sigDone = nil, nil
}
