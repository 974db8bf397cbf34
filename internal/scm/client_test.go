package scm

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"testing"

	"servicectl/internal/svcerr"
	"servicectl/internal/svcflag"
)

func seededBackend() *fakeBackend {
	f := newFakeBackend()
	f.services["Spooler"] = EnumEntry{
		Status:      Status{ServiceType: svcflag.Win32OwnProcess, State: svcflag.StateRunning},
		DisplayName: "Print Spooler",
	}
	f.services["Tcpip"] = EnumEntry{
		Status: Status{ServiceType: svcflag.KernelDriver, State: svcflag.StateRunning},
	}
	f.services["Fax"] = EnumEntry{
		Status: Status{ServiceType: svcflag.Win32ShareProcess, State: svcflag.StateStopped},
	}
	return f
}

func TestNames_DefaultsToAll(t *testing.T) {
	f := seededBackend()
	c := NewWithBackend(f)

	names, err := c.Names(ListOptions{})
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if f.typeMask != svcflag.TypeAll || f.stateMask != svcflag.FilterAll {
		t.Errorf("expected ALL masks, got type=%#x state=%#x", uint32(f.typeMask), uint32(f.stateMask))
	}
	if len(names) != 3 {
		t.Errorf("expected 3 names, got %v", names)
	}
}

func TestNames_FoldsFilters(t *testing.T) {
	f := seededBackend()
	c := NewWithBackend(f)

	names, err := c.Names(ListOptions{
		Types:  []svcflag.ServiceType{svcflag.Win32OwnProcess, svcflag.Win32ShareProcess},
		States: []svcflag.StateFilter{svcflag.FilterInactive},
	})
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if f.typeMask != svcflag.TypeWin32 {
		t.Errorf("expected type mask %#x, got %#x", uint32(svcflag.TypeWin32), uint32(f.typeMask))
	}
	if f.stateMask != svcflag.FilterInactive {
		t.Errorf("expected state mask INACTIVE, got %s", f.stateMask)
	}
	if len(names) != 1 || names[0] != "Fax" {
		t.Errorf("expected [Fax], got %v", names)
	}
}

func TestNames_EmptyCollectionMatchesNothing(t *testing.T) {
	f := seededBackend()
	c := NewWithBackend(f)

	names, err := c.Names(ListOptions{Types: []svcflag.ServiceType{}})
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if f.typeMask != 0 {
		t.Errorf("empty type list must fold to 0, got %#x", uint32(f.typeMask))
	}
	if len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}

func TestEnumerate_IncludesDisplayName(t *testing.T) {
	c := NewWithBackend(seededBackend())

	all, err := c.Enumerate(ListOptions{Types: []svcflag.ServiceType{svcflag.TypeDriver}})
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if _, ok := all["Tcpip"]; !ok || len(all) != 1 {
		t.Errorf("expected only Tcpip, got %v", all)
	}

	all, _ = c.Enumerate(ListOptions{})
	if all["Spooler"].DisplayName != "Print Spooler" {
		t.Errorf("expected display name, got %+v", all["Spooler"])
	}
}

func TestConfigAndStatus_NotFound(t *testing.T) {
	c := NewWithBackend(newFakeBackend())

	if _, err := c.Config("missing"); !errors.Is(err, svcerr.ErrNotFound) {
		t.Errorf("Config: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Status("missing"); !errors.Is(err, svcerr.ErrNotFound) {
		t.Errorf("Status: expected ErrNotFound, got %v", err)
	}
}

func TestCreate_AppliesDefaults(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	err := c.Create("MyAgent", CreateOptions{BinaryPathName: `C:\agent\agent.exe`, Password: "pw"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	req := f.created["MyAgent"]
	if req.ServiceType != svcflag.Win32OwnProcess {
		t.Errorf("ServiceType = %s, want WIN32_OWN_PROCESS", req.ServiceType)
	}
	if req.StartType != svcflag.AutoStart {
		t.Errorf("StartType = %s, want AUTO_START", req.StartType)
	}
	if req.ErrorControl != svcflag.ErrorNormal {
		t.Errorf("ErrorControl = %s, want NORMAL", req.ErrorControl)
	}
	if req.BinaryPathName != `C:\agent\agent.exe` || req.Password != "pw" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestCreate_ExplicitValues(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	start := svcflag.DemandStart
	errCtl := svcflag.ErrorSevere
	err := c.Create("MyAgent", CreateOptions{
		BinaryPathName: `C:\agent\agent.exe`,
		ServiceType:    []svcflag.ServiceType{svcflag.Win32ShareProcess, svcflag.InteractiveProcess},
		StartType:      &start,
		ErrorControl:   &errCtl,
		Dependencies:   []string{"Tcpip"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	req := f.created["MyAgent"]
	if req.ServiceType != svcflag.Win32ShareProcess|svcflag.InteractiveProcess {
		t.Errorf("ServiceType = %s", req.ServiceType)
	}
	if req.StartType != svcflag.DemandStart || req.ErrorControl != svcflag.ErrorSevere {
		t.Errorf("unexpected start/error control: %+v", req)
	}
	if len(req.Dependencies) != 1 || req.Dependencies[0] != "Tcpip" {
		t.Errorf("unexpected dependencies: %v", req.Dependencies)
	}
}

func TestCreate_RequiresBinaryPath(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	err := c.Create("MyAgent", CreateOptions{})
	if !errors.Is(err, svcerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if len(f.created) != 0 {
		t.Error("backend must not be called without a binary path")
	}
}

func TestCreate_AlreadyExistsPassesThrough(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)
	opts := CreateOptions{BinaryPathName: "agent.exe"}

	if err := c.Create("MyAgent", opts); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if err := c.Create("MyAgent", opts); !errors.Is(err, svcerr.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestChange_OmittedTypeIsNotSubmitted(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	desc := "new description"
	if err := c.Change("MyAgent", ChangeOptions{Description: &desc}); err != nil {
		t.Fatalf("Change failed: %v", err)
	}
	req := f.changed[0]
	if req.ServiceType != nil {
		t.Errorf("expected no service type, got %s", *req.ServiceType)
	}
	if req.StartType != nil || req.ErrorControl != nil || req.Dependencies != nil {
		t.Errorf("expected untouched fields, got %+v", req)
	}
	if req.Description == nil || *req.Description != desc {
		t.Errorf("expected description to be submitted")
	}
}

func TestChange_FoldsSuppliedType(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	err := c.Change("MyAgent", ChangeOptions{
		ServiceType: []svcflag.ServiceType{svcflag.Win32OwnProcess, svcflag.InteractiveProcess},
	})
	if err != nil {
		t.Fatalf("Change failed: %v", err)
	}
	req := f.changed[0]
	if req.ServiceType == nil || *req.ServiceType != svcflag.Win32OwnProcess|svcflag.InteractiveProcess {
		t.Errorf("unexpected service type: %v", req.ServiceType)
	}
}

func TestChange_EmptyTypeSubmitsZero(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	if err := c.Change("MyAgent", ChangeOptions{ServiceType: []svcflag.ServiceType{}}); err != nil {
		t.Fatalf("Change failed: %v", err)
	}
	req := f.changed[0]
	if req.ServiceType == nil || *req.ServiceType != 0 {
		t.Errorf("expected a submitted zero mask, got %v", req.ServiceType)
	}
}

func TestEnableDisable(t *testing.T) {
	tests := []struct {
		name string
		call func(c *Client) error
		want svcflag.StartType
	}{
		{"enable default", func(c *Client) error { return c.EnableAuto("MyAgent") }, svcflag.AutoStart},
		{"enable demand", func(c *Client) error { return c.Enable("MyAgent", svcflag.DemandStart) }, svcflag.DemandStart},
		{"disable", func(c *Client) error { return c.Disable("MyAgent") }, svcflag.Disabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeBackend()
			if err := tt.call(NewWithBackend(f)); err != nil {
				t.Fatalf("call failed: %v", err)
			}
			req := f.changed[0]
			if req.StartType == nil || *req.StartType != tt.want {
				t.Fatalf("expected start type %s, got %v", tt.want, req.StartType)
			}
			if req.ServiceType != nil || req.ErrorControl != nil || req.BinaryPathName != nil {
				t.Errorf("only start type should be submitted: %+v", req)
			}
		})
	}
}

func TestRemoveStartStop(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)
	ctx := context.Background()

	if err := c.Start(ctx, "MyAgent"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Stop(ctx, "MyAgent"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Remove("MyAgent"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(f.started) != 1 || len(f.stopped) != 1 || len(f.deleted) != 1 {
		t.Errorf("unexpected calls: started=%v stopped=%v deleted=%v", f.started, f.stopped, f.deleted)
	}
}

func TestBackendErrorsReturnedVerbatim(t *testing.T) {
	f := newFakeBackend()
	f.err = errors.New("StartService: service busy")
	c := NewWithBackend(f)

	if err := c.Start(context.Background(), "MyAgent"); err != f.err {
		t.Errorf("expected backend error unchanged, got %v", err)
	}
}

func TestEmptyNameRejected(t *testing.T) {
	f := newFakeBackend()
	c := NewWithBackend(f)

	if err := c.Remove(""); !errors.Is(err, svcerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if len(f.deleted) != 0 {
		t.Error("backend must not be called for an empty name")
	}
}

func TestNoBackend_PlatformUnsupported(t *testing.T) {
	c := NewWithBackend(nil)

	calls := map[string]func() error{
		"names":  func() error { _, err := c.Names(ListOptions{}); return err },
		"status": func() error { _, err := c.Status("Spooler"); return err },
		"create": func() error { return c.Create("MyAgent", CreateOptions{BinaryPathName: "x"}) },
		"start":  func() error { return c.Start(context.Background(), "Spooler") },
	}

	ops := make([]string, 0, len(calls))
	for op := range calls {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		err := calls[op]()
		if !errors.Is(err, svcerr.ErrPlatformUnsupported) {
			t.Errorf("%s: expected ErrPlatformUnsupported, got %v", op, err)
			continue
		}
		var pe *svcerr.PlatformError
		if !errors.As(err, &pe) || pe.Platform != runtime.GOOS {
			t.Errorf("%s: expected platform %q in error, got %v", op, runtime.GOOS, err)
		}
	}
}
