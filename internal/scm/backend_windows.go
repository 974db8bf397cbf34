//go:build windows

package scm

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"servicectl/internal/svcerr"
	"servicectl/internal/svcflag"
)

func platformBackend() Backend {
	return windowsBackend{}
}

// windowsBackend opens a fresh manager connection per call with only the
// access rights that call needs, so read-only operations work without
// elevation.
type windowsBackend struct{}

func connect(access uint32) (*mgr.Mgr, error) {
	h, err := windows.OpenSCManager(nil, nil, access)
	if err != nil {
		return nil, classify("OpenSCManager", err)
	}
	return &mgr.Mgr{Handle: h}, nil
}

func openService(m *mgr.Mgr, name string, access uint32) (*mgr.Service, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", svcerr.ErrInvalidConfig, err)
	}
	h, err := windows.OpenService(m.Handle, p, access)
	if err != nil {
		return nil, classify("OpenService", err)
	}
	return &mgr.Service{Name: name, Handle: h}, nil
}

// withService runs fn on the named service opened with the given rights.
func withService(mgrAccess uint32, name string, access uint32, fn func(*mgr.Service) error) error {
	m, err := connect(mgrAccess)
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := openService(m, name, access)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

type enumRecord struct {
	name    string
	display string
	status  windows.SERVICE_STATUS_PROCESS
}

func enumerate(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) ([]enumRecord, error) {
	// Zero masks are rejected by the service control manager; they mean
	// "match nothing" here.
	if typeMask == 0 || stateMask == 0 {
		return nil, nil
	}

	m, err := connect(windows.SC_MANAGER_ENUMERATE_SERVICE)
	if err != nil {
		return nil, err
	}
	defer m.Disconnect()

	var (
		buf      []byte
		needed   uint32
		returned uint32
		resume   uint32
		records  []enumRecord
	)
	for {
		var p *byte
		if len(buf) > 0 {
			p = &buf[0]
		}
		err := windows.EnumServicesStatusEx(m.Handle, windows.SC_ENUM_PROCESS_INFO,
			uint32(typeMask), uint32(stateMask), p, uint32(len(buf)),
			&needed, &returned, &resume, nil)
		if returned > 0 {
			// the name strings point into buf, so convert before it is reused
			batch := unsafe.Slice((*windows.ENUM_SERVICE_STATUS_PROCESS)(unsafe.Pointer(&buf[0])), returned)
			for _, e := range batch {
				records = append(records, enumRecord{
					name:    windows.UTF16PtrToString(e.ServiceName),
					display: windows.UTF16PtrToString(e.DisplayName),
					status:  e.ServiceStatusProcess,
				})
			}
		}
		if err == nil {
			return records, nil
		}
		if !errors.Is(err, windows.ERROR_MORE_DATA) {
			return nil, classify("EnumServicesStatusEx", err)
		}
		if needed > uint32(len(buf)) {
			buf = make([]byte, needed)
		}
	}
}

func toStatus(s windows.SERVICE_STATUS_PROCESS) Status {
	return Status{
		ServiceType:             svcflag.ServiceType(s.ServiceType),
		State:                   svcflag.ServiceState(s.CurrentState),
		ControlsAccepted:        svcflag.ControlsAccepted(s.ControlsAccepted),
		Win32ExitCode:           s.Win32ExitCode,
		ServiceSpecificExitCode: s.ServiceSpecificExitCode,
		CheckPoint:              s.CheckPoint,
		WaitHint:                s.WaitHint,
		ProcessID:               s.ProcessId,
		ServiceFlags:            svcflag.ServiceFlags(s.ServiceFlags),
	}
}

func (windowsBackend) QueryNames(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) ([]string, error) {
	records, err := enumerate(typeMask, stateMask)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.name)
	}
	return names, nil
}

func (windowsBackend) QueryAll(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) (map[string]EnumEntry, error) {
	records, err := enumerate(typeMask, stateMask)
	if err != nil {
		return nil, err
	}
	all := make(map[string]EnumEntry, len(records))
	for _, r := range records {
		all[r.name] = EnumEntry{Status: toStatus(r.status), DisplayName: r.display}
	}
	return all, nil
}

func (windowsBackend) GetConfig(name string) (ConfigDisplay, error) {
	var out ConfigDisplay
	err := withService(windows.SC_MANAGER_CONNECT, name, windows.SERVICE_QUERY_CONFIG, func(s *mgr.Service) error {
		c, err := s.Config()
		if err != nil {
			return classify("QueryServiceConfig", err)
		}
		deps := c.Dependencies
		if deps == nil {
			deps = []string{}
		}
		out = ConfigDisplay{
			Config: Config{
				ServiceType:      svcflag.ServiceType(c.ServiceType),
				StartType:        svcflag.StartType(c.StartType),
				ErrorControl:     svcflag.ErrorControl(c.ErrorControl),
				Dependencies:     deps,
				BinaryPathName:   c.BinaryPathName,
				LoadOrderGroup:   c.LoadOrderGroup,
				ServiceStartName: c.ServiceStartName,
				DisplayName:      c.DisplayName,
				Description:      c.Description,
			},
			TagID: c.TagId,
		}
		return nil
	})
	return out, err
}

func (windowsBackend) GetStatus(name string) (Status, error) {
	var out Status
	err := withService(windows.SC_MANAGER_CONNECT, name, windows.SERVICE_QUERY_STATUS, func(s *mgr.Service) error {
		var (
			p      windows.SERVICE_STATUS_PROCESS
			needed uint32
		)
		err := windows.QueryServiceStatusEx(s.Handle, windows.SC_STATUS_PROCESS_INFO,
			(*byte)(unsafe.Pointer(&p)), uint32(unsafe.Sizeof(p)), &needed)
		if err != nil {
			return classify("QueryServiceStatusEx", err)
		}
		out = toStatus(p)
		return nil
	})
	return out, err
}

// StartService returns once the service control manager has launched the
// service process, which is when the native call itself returns.
func (windowsBackend) StartService(ctx context.Context, name string) error {
	return callCtx(ctx, func() error {
		return withService(windows.SC_MANAGER_CONNECT, name, windows.SERVICE_START, func(s *mgr.Service) error {
			if err := s.Start(); err != nil {
				return classify("StartService", err)
			}
			return nil
		})
	})
}

func (windowsBackend) StopService(ctx context.Context, name string) error {
	return callCtx(ctx, func() error {
		return withService(windows.SC_MANAGER_CONNECT, name, windows.SERVICE_STOP, func(s *mgr.Service) error {
			if _, err := s.Control(svc.Stop); err != nil {
				return classify("ControlService", err)
			}
			return nil
		})
	})
}

// callCtx runs a blocking native call and stops waiting for it when ctx is
// done. The call itself cannot be interrupted and finishes in the background.
func callCtx(ctx context.Context, call func() error) error {
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (windowsBackend) ChangeConfig(name string, req ChangeRequest) error {
	return withService(windows.SC_MANAGER_CONNECT, name, windows.SERVICE_CHANGE_CONFIG, func(s *mgr.Service) error {
		serviceType, startType, errorControl := uint32(windows.SERVICE_NO_CHANGE), uint32(windows.SERVICE_NO_CHANGE), uint32(windows.SERVICE_NO_CHANGE)
		if req.ServiceType != nil {
			serviceType = uint32(*req.ServiceType)
		}
		if req.StartType != nil {
			startType = uint32(*req.StartType)
		}
		if req.ErrorControl != nil {
			errorControl = uint32(*req.ErrorControl)
		}

		err := windows.ChangeServiceConfig(s.Handle, serviceType, startType, errorControl,
			optionalString(req.BinaryPathName),
			optionalString(req.LoadOrderGroup),
			nil,
			dependencyBlock(req.Dependencies),
			optionalString(req.ServiceStartName),
			optionalString(req.Password),
			optionalString(req.DisplayName))
		if err != nil {
			return classify("ChangeServiceConfig", err)
		}

		if req.Description != nil {
			return setDescription(s.Handle, *req.Description)
		}
		return nil
	})
}

func (windowsBackend) CreateService(name string, req CreateRequest) error {
	m, err := connect(windows.SC_MANAGER_CREATE_SERVICE)
	if err != nil {
		return err
	}
	defer m.Disconnect()

	display := req.DisplayName
	if display == "" {
		display = name
	}
	h, err := windows.CreateService(m.Handle,
		windows.StringToUTF16Ptr(name),
		windows.StringToUTF16Ptr(display),
		windows.SERVICE_CHANGE_CONFIG,
		uint32(req.ServiceType), uint32(req.StartType), uint32(req.ErrorControl),
		windows.StringToUTF16Ptr(req.BinaryPathName),
		stringOrNil(req.LoadOrderGroup),
		nil,
		dependencyBlock(req.Dependencies),
		stringOrNil(req.ServiceStartName),
		stringOrNil(req.Password))
	if err != nil {
		return classify("CreateService", err)
	}
	defer windows.CloseServiceHandle(h)

	if req.Description != "" {
		return setDescription(h, req.Description)
	}
	return nil
}

func (windowsBackend) DeleteService(name string) error {
	return withService(windows.SC_MANAGER_CONNECT, name, windows.DELETE, func(s *mgr.Service) error {
		if err := windows.DeleteService(s.Handle); err != nil {
			return classify("DeleteService", err)
		}
		return nil
	})
}

func setDescription(h windows.Handle, desc string) error {
	d := windows.SERVICE_DESCRIPTION{Description: windows.StringToUTF16Ptr(desc)}
	if err := windows.ChangeServiceConfig2(h, windows.SERVICE_CONFIG_DESCRIPTION, (*byte)(unsafe.Pointer(&d))); err != nil {
		return classify("ChangeServiceConfig2", err)
	}
	return nil
}

func optionalString(s *string) *uint16 {
	if s == nil {
		return nil
	}
	return windows.StringToUTF16Ptr(*s)
}

func stringOrNil(s string) *uint16 {
	if s == "" {
		return nil
	}
	return windows.StringToUTF16Ptr(s)
}

// dependencyBlock encodes names as a double-NUL-terminated list. nil leaves
// dependencies unchanged; an empty list clears them.
func dependencyBlock(deps []string) *uint16 {
	if deps == nil {
		return nil
	}
	if len(deps) == 0 {
		return &[]uint16{0, 0}[0]
	}
	var block []uint16
	for _, d := range deps {
		block = append(block, windows.StringToUTF16(d)...)
	}
	block = append(block, 0)
	return &block[0]
}

// classify maps Win32 errors onto the svcerr sentinels, keeping the
// original error matchable as well.
func classify(call string, err error) error {
	var kind error
	switch {
	case errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST):
		kind = svcerr.ErrNotFound
	case errors.Is(err, windows.ERROR_SERVICE_EXISTS),
		errors.Is(err, windows.ERROR_DUPLICATE_SERVICE_NAME):
		kind = svcerr.ErrAlreadyExists
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		kind = svcerr.ErrAccessDenied
	case errors.Is(err, windows.ERROR_SERVICE_ALREADY_RUNNING):
		kind = svcerr.ErrAlreadyRunning
	case errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE):
		kind = svcerr.ErrNotRunning
	case errors.Is(err, windows.ERROR_SERVICE_MARKED_FOR_DELETE),
		errors.Is(err, windows.ERROR_SERVICE_CANNOT_ACCEPT_CTRL),
		errors.Is(err, windows.ERROR_DEPENDENT_SERVICES_RUNNING),
		errors.Is(err, windows.ERROR_SERVICE_DATABASE_LOCKED):
		kind = svcerr.ErrBusy
	case errors.Is(err, windows.ERROR_INVALID_PARAMETER),
		errors.Is(err, windows.ERROR_INVALID_NAME),
		errors.Is(err, windows.ERROR_CIRCULAR_DEPENDENCY),
		errors.Is(err, windows.ERROR_INVALID_SERVICE_ACCOUNT):
		kind = svcerr.ErrInvalidConfig
	default:
		return fmt.Errorf("%s: %w", call, err)
	}
	return fmt.Errorf("%s: %w: %w", call, kind, err)
}
