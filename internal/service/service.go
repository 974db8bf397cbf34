// Package service runs the current process as the live instance of a
// service. A Runtime registers with the service control manager, hands the
// start arguments to the caller, turns termination signals and stop
// requests into a single controlled shutdown, and forces the process to
// exit if that shutdown does not finish within a grace period.
package service

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"servicectl/internal/logger"
	"servicectl/internal/svcerr"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStopGracePeriod   = 10 * time.Second

	beatTimeout = 5 * time.Second
)

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateUnregistered State = iota
	StateRegistering
	StateRunning
	StateStopping
	StateExited
)

var stateNames = [...]string{"Unregistered", "Registering", "Running", "Stopping", "Exited"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Beater receives every liveness heartbeat. Close is called once when the
// heartbeat stops.
type Beater interface {
	Beat(ctx context.Context, beat int64) error
	Close() error
}

// Options configures Run.
type Options struct {
	// IgnoreUnsupportedPlatform makes Run a no-op success when the platform
	// has no service control manager or registration fails.
	IgnoreUnsupportedPlatform bool

	// OnStart receives the start arguments before Run returns them.
	OnStart func(args []string)

	// OnStop is called once when the service starts stopping. When nil,
	// os.Interrupt is delivered to every channel registered with Notify.
	OnStop func()

	HeartbeatInterval time.Duration
	StopGracePeriod   time.Duration

	// Beater, if set, is called on every heartbeat.
	Beater Beater
}

// Runtime is the run-as-service state machine:
//
//	Unregistered -> Registering -> Running -> Stopping -> Exited
//
// A Runtime is used for a single Run.
type Runtime struct {
	registrar  Registrar
	clock      clock.Clock
	exit       func(code int)
	notify     func(c chan<- os.Signal, sig ...os.Signal)
	stopNotify func(c chan<- os.Signal)

	mu            sync.Mutex
	state         State
	name          string
	opts          Options
	session       Session
	ctx           context.Context
	cancel        context.CancelFunc
	heartbeatStop chan struct{}
	watchdog      *clock.Timer
	sigCh         chan os.Signal
	sigDone       chan struct{}
	subscribers   []chan<- os.Signal

	beats atomic.Int64
}

// New returns a Runtime for the platform's service control manager.
func New() *Runtime {
	return NewWithRegistrar(platformRegistrar())
}

// NewWithRegistrar returns a Runtime registering through reg. A nil reg
// behaves like a platform without a service control manager.
func NewWithRegistrar(reg Registrar) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		registrar:  reg,
		clock:      clock.New(),
		exit:       os.Exit,
		notify:     signalNotify,
		stopNotify: signalStop,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run registers the process as the running instance of the named service
// and blocks until the service control manager has answered. It returns
// the start arguments once OnStart has returned and the Runtime is
// Running.
func (r *Runtime) Run(name string, opts Options) ([]string, error) {
	log := logger.WithComponent("service-runtime")

	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = DefaultStopGracePeriod
	}

	r.mu.Lock()
	if r.state != StateUnregistered {
		state := r.state
		r.mu.Unlock()
		return nil, &svcerr.OpError{Op: "run", Name: name, Err: fmt.Errorf("%w: runtime is %s", svcerr.ErrAlreadyRunning, state)}
	}
	if r.registrar == nil {
		r.mu.Unlock()
		if opts.IgnoreUnsupportedPlatform {
			log.Info().Str("platform", runtime.GOOS).Msg("No service control manager, continuing without registration")
			return nil, nil
		}
		return nil, &svcerr.OpError{Op: "run", Name: name, Err: &svcerr.PlatformError{Platform: runtime.GOOS}}
	}
	r.state = StateRegistering
	r.name = name
	r.opts = opts
	r.mu.Unlock()

	log.Info().Str("service", name).Msg("Registering service")
	reg := <-r.registrar.Register(name, func() { r.beginStop("stop requested by service control manager") })

	if reg.Err != nil {
		r.mu.Lock()
		r.state = StateUnregistered
		r.mu.Unlock()
		if opts.IgnoreUnsupportedPlatform {
			log.Warn().Err(reg.Err).Str("service", name).Msg("Service registration failed, continuing without registration")
			return nil, nil
		}
		return nil, &svcerr.OpError{Op: "run", Name: name, Err: fmt.Errorf("%w: %w", svcerr.ErrRegistrationFailed, reg.Err)}
	}

	if opts.OnStart != nil {
		opts.OnStart(reg.Args)
	}

	r.mu.Lock()
	r.session = reg.Session
	r.state = StateRunning
	r.startHeartbeatLocked()
	r.subscribeSignalsLocked()
	r.mu.Unlock()

	reg.Session.Running()
	log.Info().Str("service", name).Strs("args", reg.Args).Msg("Service running")
	return reg.Args, nil
}

// Notify relays the re-raised interrupt of the default stop handler to c.
// Like signal.Notify, delivery does not block.
func (r *Runtime) Notify(c chan<- os.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, c)
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Context is cancelled when the service starts stopping or finishes.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Beats returns the number of heartbeats so far.
func (r *Runtime) Beats() int64 {
	return r.beats.Load()
}

// Finish reports the service as stopped with exitCode and releases the
// heartbeat, the watchdog and the signal subscription. It is a no-op
// unless the Runtime is Running or Stopping.
func (r *Runtime) Finish(exitCode uint32) {
	r.mu.Lock()
	if r.state != StateRunning && r.state != StateStopping {
		r.mu.Unlock()
		return
	}
	r.state = StateExited
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
	r.stopHeartbeatLocked()
	r.unsubscribeSignalsLocked()
	r.cancel()
	session := r.session
	r.mu.Unlock()

	log := logger.WithComponent("service-runtime")
	log.Info().
		Str("service", r.name).
		Uint32("exit_code", exitCode).
		Msg("Service stopped")
	session.Stopped(exitCode)
}

// beginStop moves a Running service to Stopping. Later calls are no-ops.
func (r *Runtime) beginStop(reason string) {
	log := logger.WithComponent("service-runtime")

	r.mu.Lock()
	if r.state != StateRunning {
		state := r.state
		r.mu.Unlock()
		log.Info().Str("reason", reason).Stringer("state", state).Msg("Ignoring stop trigger")
		return
	}
	r.state = StateStopping
	r.stopHeartbeatLocked()
	grace := r.opts.StopGracePeriod
	r.watchdog = r.clock.AfterFunc(grace, r.forceExit)
	r.cancel()
	onStop := r.opts.OnStop
	r.mu.Unlock()

	log.Info().Str("reason", reason).Dur("grace", grace).Msg("Stopping service")

	// panics from the hook are left to crash the process; the watchdog is
	// already armed
	if onStop != nil {
		onStop()
		return
	}
	r.reraiseInterrupt()
}

func (r *Runtime) reraiseInterrupt() {
	r.mu.Lock()
	subs := append([]chan<- os.Signal(nil), r.subscribers...)
	r.mu.Unlock()

	if len(subs) == 0 {
		log := logger.WithComponent("service-runtime")
		log.Warn().Msg("No interrupt handler registered, waiting for the watchdog")
	}
	for _, c := range subs {
		select {
		case c <- os.Interrupt:
		default:
		}
	}
}

// forceExit is the watchdog: the grace period elapsed while Stopping.
func (r *Runtime) forceExit() {
	r.mu.Lock()
	if r.state != StateStopping {
		r.mu.Unlock()
		return
	}
	r.state = StateExited
	r.watchdog = nil
	r.unsubscribeSignalsLocked()
	session := r.session
	grace := r.opts.StopGracePeriod
	r.mu.Unlock()

	log := logger.WithComponent("service-runtime")
	log.Warn().
		Dur("grace", grace).
		Msg("Stop grace period elapsed, exiting forcefully")
	session.Stopped(0)
	r.exit(0)
}

func (r *Runtime) startHeartbeatLocked() {
	ticker := r.clock.Ticker(r.opts.HeartbeatInterval)
	stop := make(chan struct{})
	r.heartbeatStop = stop
	ctx := r.ctx
	beater := r.opts.Beater

	go func() {
		defer ticker.Stop()
		log := logger.WithComponent("service-runtime")
		for {
			select {
			case <-stop:
				if beater != nil {
					if err := beater.Close(); err != nil {
						log.Warn().Err(err).Msg("Failed to close heartbeat publisher")
					}
				}
				return
			case <-ticker.C:
				n := r.beats.Add(1)
				log.Info().Int64("beats", n).Msg("Still running")
				if beater == nil {
					continue
				}
				beatCtx, cancel := context.WithTimeout(ctx, beatTimeout)
				if err := beater.Beat(beatCtx, n); err != nil {
					log.Warn().Err(err).Msg("Failed to publish heartbeat")
				}
				cancel()
			}
		}
	}()
}

func (r *Runtime) stopHeartbeatLocked() {
	if r.heartbeatStop != nil {
		close(r.heartbeatStop)
		r.heartbeatStop = nil
	}
}
