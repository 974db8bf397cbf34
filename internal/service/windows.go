//go:build windows

package service

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/windows/svc"

	"servicectl/internal/logger"
)

// stopReportTimeout bounds how long Stopped waits for the service control
// manager to take the final status.
const stopReportTimeout = 5 * time.Second

var errNotUnderSCM = errors.New("process was not started by the service control manager")

func platformRegistrar() Registrar {
	return windowsRegistrar{}
}

type windowsRegistrar struct{}

// Register runs the service dispatcher on its own goroutine; svc.Run blocks
// until the service reports Stopped.
func (windowsRegistrar) Register(name string, onStopRequested func()) <-chan Registration {
	out := make(chan Registration, 1)
	h := &handler{
		onStop:   onStopRequested,
		running:  make(chan struct{}),
		stopped:  make(chan uint32, 1),
		finished: make(chan struct{}),
	}
	h.resolve = func(reg Registration) {
		h.resolveOnce.Do(func() { out <- reg })
	}

	go func() {
		defer close(h.finished)

		isService, err := svc.IsWindowsService()
		if err != nil {
			h.resolve(Registration{Err: err})
			return
		}
		if !isService {
			h.resolve(Registration{Err: errNotUnderSCM})
			return
		}

		if err := svc.Run(name, h); err != nil {
			h.resolve(Registration{Err: err})
		}
	}()
	return out
}

// handler implements svc.Handler and is the Session of a registration.
type handler struct {
	onStop   func()
	resolve  func(Registration)
	running  chan struct{}
	stopped  chan uint32
	finished chan struct{}

	resolveOnce sync.Once
	runningOnce sync.Once
	stoppedOnce sync.Once
}

func (h *handler) Running() {
	h.runningOnce.Do(func() { close(h.running) })
}

func (h *handler) Stopped(exitCode uint32) {
	h.stoppedOnce.Do(func() { h.stopped <- exitCode })
	select {
	case <-h.finished:
	case <-time.After(stopReportTimeout):
	}
}

// Execute implements the svc.Handler interface.
func (h *handler) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (svcSpecificEC bool, exitCode uint32) {
	log := logger.WithComponent("windows-service")

	const acceptedCommands = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}
	h.resolve(Registration{Args: args, Session: h})

	// start-up may also end without ever running
	select {
	case <-h.running:
	case code := <-h.stopped:
		changes <- svc.Status{State: svc.Stopped, Win32ExitCode: code}
		return false, code
	}

	changes <- svc.Status{State: svc.Running, Accepts: acceptedCommands}
	log.Info().Msg("Windows service started")

	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
				// Respond twice as per documentation
				time.Sleep(100 * time.Millisecond)
				changes <- c.CurrentStatus

			case svc.Stop, svc.Shutdown:
				log.Info().Msg("Received stop signal from Windows service control")
				changes <- svc.Status{State: svc.StopPending}
				// the stop hook may block until the service finishes
				go h.onStop()

			default:
				log.Warn().Int("cmd", int(c.Cmd)).Msg("Unexpected service control command")
			}

		case code := <-h.stopped:
			changes <- svc.Status{State: svc.Stopped, Win32ExitCode: code}
			return false, code
		}
	}
}

// IsService reports whether the process was started by the service
// control manager.
func IsService() bool {
	isService, err := svc.IsWindowsService()
	return err == nil && isService
}
