package scm

import (
	"context"
	"sync"

	"servicectl/internal/svcerr"
	"servicectl/internal/svcflag"
)

// fakeBackend records what the client submits and serves canned data.
type fakeBackend struct {
	mu sync.Mutex

	typeMask  svcflag.ServiceType
	stateMask svcflag.StateFilter
	services  map[string]EnumEntry
	configs   map[string]ConfigDisplay

	created map[string]CreateRequest
	changed []ChangeRequest
	deleted []string
	started []string
	stopped []string

	// statuses is consumed one per GetStatus call; the last one repeats
	statuses []Status
	calls    int

	err error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		services: map[string]EnumEntry{},
		configs:  map[string]ConfigDisplay{},
		created:  map[string]CreateRequest{},
	}
}

func (f *fakeBackend) QueryNames(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) ([]string, error) {
	all, err := f.QueryAll(typeMask, stateMask)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeBackend) QueryAll(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) (map[string]EnumEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typeMask, f.stateMask = typeMask, stateMask
	if f.err != nil {
		return nil, f.err
	}

	out := map[string]EnumEntry{}
	for name, e := range f.services {
		if e.ServiceType&typeMask == 0 {
			continue
		}
		active := e.State != svcflag.StateStopped
		if (active && stateMask&svcflag.FilterActive == 0) || (!active && stateMask&svcflag.FilterInactive == 0) {
			continue
		}
		out[name] = e
	}
	return out, nil
}

func (f *fakeBackend) GetConfig(name string) (ConfigDisplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[name]
	if !ok {
		return ConfigDisplay{}, svcerr.ErrNotFound
	}
	return c, nil
}

func (f *fakeBackend) GetStatus(name string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Status{}, f.err
	}
	if len(f.statuses) == 0 {
		e, ok := f.services[name]
		if !ok {
			return Status{}, svcerr.ErrNotFound
		}
		return e.Status, nil
	}
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	return f.statuses[i], nil
}

func (f *fakeBackend) StartService(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	return f.err
}

func (f *fakeBackend) StopService(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return f.err
}

func (f *fakeBackend) ChangeConfig(name string, req ChangeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, req)
	return f.err
}

func (f *fakeBackend) CreateService(name string, req CreateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.created[name]; ok {
		return svcerr.ErrAlreadyExists
	}
	f.created[name] = req
	return f.err
}

func (f *fakeBackend) DeleteService(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return f.err
}
