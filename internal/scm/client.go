package scm

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"

	"servicectl/internal/logger"
	"servicectl/internal/svcerr"
	"servicectl/internal/svcflag"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultWaitTimeout  = 60 * time.Second
)

// ListOptions filters Names and Enumerate. A nil slice selects every
// service; a non-nil empty slice selects none.
type ListOptions struct {
	Types  []svcflag.ServiceType
	States []svcflag.StateFilter
}

// Client performs service control operations. It holds no per-service
// state and is safe for concurrent use.
type Client struct {
	backend      Backend
	clock        clock.Clock
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// New returns a Client for the platform's service control manager. On
// platforms without one every operation fails with ErrPlatformUnsupported.
func New() *Client {
	return NewWithBackend(platformBackend())
}

// NewWithBackend returns a Client using b.
func NewWithBackend(b Backend) *Client {
	return &Client{
		backend:      b,
		clock:        clock.New(),
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
	}
}

// SetWaitTimeout bounds WaitState. Non-positive values keep the default.
func (c *Client) SetWaitTimeout(d time.Duration) {
	if d > 0 {
		c.waitTimeout = d
	}
}

func (c *Client) check(op, name string, named bool) error {
	if c.backend == nil {
		return &svcerr.OpError{Op: op, Name: name, Err: &svcerr.PlatformError{Platform: runtime.GOOS}}
	}
	if named && name == "" {
		return &svcerr.OpError{Op: op, Err: fmt.Errorf("%w: empty service name", svcerr.ErrInvalidConfig)}
	}
	return nil
}

func (o ListOptions) masks() (svcflag.ServiceType, svcflag.StateFilter) {
	typeMask, stateMask := svcflag.TypeAll, svcflag.FilterAll
	if o.Types != nil {
		typeMask = svcflag.Fold(o.Types...)
	}
	if o.States != nil {
		stateMask = svcflag.Fold(o.States...)
	}
	return typeMask, stateMask
}

// Names lists the names of the services matching both filters.
func (c *Client) Names(opts ListOptions) ([]string, error) {
	if err := c.check("names", "", false); err != nil {
		return nil, err
	}
	return c.backend.QueryNames(opts.masks())
}

// Enumerate returns the status and display name of every service matching
// both filters, keyed by service name.
func (c *Client) Enumerate(opts ListOptions) (map[string]EnumEntry, error) {
	if err := c.check("enumerate", "", false); err != nil {
		return nil, err
	}
	return c.backend.QueryAll(opts.masks())
}

// Config returns the configuration of the named service.
func (c *Client) Config(name string) (ConfigDisplay, error) {
	if err := c.check("config", name, true); err != nil {
		return ConfigDisplay{}, err
	}
	return c.backend.GetConfig(name)
}

// Status returns the current status of the named service.
func (c *Client) Status(name string) (Status, error) {
	if err := c.check("status", name, true); err != nil {
		return Status{}, err
	}
	return c.backend.GetStatus(name)
}

// Create registers a new service.
func (c *Client) Create(name string, opts CreateOptions) error {
	if err := c.check("create", name, true); err != nil {
		return err
	}
	if opts.BinaryPathName == "" {
		return &svcerr.OpError{Op: "create", Name: name, Err: fmt.Errorf("%w: binary path is required", svcerr.ErrInvalidConfig)}
	}

	req := CreateRequest{
		Config: Config{
			ServiceType:      svcflag.Win32OwnProcess,
			StartType:        svcflag.AutoStart,
			ErrorControl:     svcflag.ErrorNormal,
			Dependencies:     opts.Dependencies,
			BinaryPathName:   opts.BinaryPathName,
			LoadOrderGroup:   opts.LoadOrderGroup,
			ServiceStartName: opts.ServiceStartName,
			DisplayName:      opts.DisplayName,
			Description:      opts.Description,
		},
		Password: opts.Password,
	}
	if opts.ServiceType != nil {
		req.ServiceType = svcflag.Fold(opts.ServiceType...)
	}
	if opts.StartType != nil {
		req.StartType = *opts.StartType
	}
	if opts.ErrorControl != nil {
		req.ErrorControl = *opts.ErrorControl
	}

	if err := c.backend.CreateService(name, req); err != nil {
		return err
	}
	log := logger.WithComponent("scm")
	log.Info().
		Str("service", name).
		Stringer("type", req.ServiceType).
		Stringer("start", req.StartType).
		Msg("Service created")
	return nil
}

// Change applies a partial configuration update.
func (c *Client) Change(name string, opts ChangeOptions) error {
	if err := c.check("change", name, true); err != nil {
		return err
	}

	req := ChangeRequest{
		StartType:        opts.StartType,
		ErrorControl:     opts.ErrorControl,
		Dependencies:     opts.Dependencies,
		BinaryPathName:   opts.BinaryPathName,
		LoadOrderGroup:   opts.LoadOrderGroup,
		ServiceStartName: opts.ServiceStartName,
		DisplayName:      opts.DisplayName,
		Description:      opts.Description,
		Password:         opts.Password,
	}
	if opts.ServiceType != nil {
		mask := svcflag.Fold(opts.ServiceType...)
		req.ServiceType = &mask
	}

	if err := c.backend.ChangeConfig(name, req); err != nil {
		return err
	}
	log := logger.WithComponent("scm")
	log.Info().Str("service", name).Msg("Service configuration changed")
	return nil
}

// Remove deletes the service registration. The service control manager
// completes the deletion once every open handle to it is closed.
func (c *Client) Remove(name string) error {
	if err := c.check("remove", name, true); err != nil {
		return err
	}
	if err := c.backend.DeleteService(name); err != nil {
		return err
	}
	log := logger.WithComponent("scm")
	log.Info().Str("service", name).Msg("Service removed")
	return nil
}

// Enable sets the start type of the named service.
func (c *Client) Enable(name string, startType svcflag.StartType) error {
	return c.Change(name, ChangeOptions{StartType: &startType})
}

// EnableAuto sets the start type to AUTO_START.
func (c *Client) EnableAuto(name string) error {
	return c.Enable(name, svcflag.AutoStart)
}

// Disable sets the start type to DISABLED.
func (c *Client) Disable(name string) error {
	return c.Enable(name, svcflag.Disabled)
}

// Start asks the service control manager to start the service. It
// returns once the request has been dispatched; the service may still be
// START_PENDING. ctx bounds only the wait for dispatch.
func (c *Client) Start(ctx context.Context, name string) error {
	if err := c.check("start", name, true); err != nil {
		return err
	}
	return c.backend.StartService(ctx, name)
}

// Stop asks the service to stop. It returns once the request has been
// accepted; the service may still be STOP_PENDING.
func (c *Client) Stop(ctx context.Context, name string) error {
	if err := c.check("stop", name, true); err != nil {
		return err
	}
	return c.backend.StopService(ctx, name)
}
