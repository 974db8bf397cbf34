// Package procinfo describes the process that hosts a running service.
package procinfo

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoProcess is returned for pid 0, which a stopped service reports.
var ErrNoProcess = errors.New("service has no process")

// Info contains what is known about a service's host process. Fields the
// caller is not allowed to read are left empty.
type Info struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	Exe        string    `json:"exe,omitempty"`
	Cmdline    string    `json:"cmdline,omitempty"`
	Username   string    `json:"username,omitempty"`
	CreateTime time.Time `json:"createTime"`
	RSS        uint64    `json:"rss"`
	VMS        uint64    `json:"vms"`
	NumThreads int32     `json:"numThreads,omitempty"`
}

// Describe looks up pid. Only a missing process is an error; details that
// cannot be read (typically for lack of privilege) are skipped.
func Describe(ctx context.Context, pid uint32) (*Info, error) {
	if pid == 0 {
		return nil, ErrNoProcess
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}

	info := &Info{PID: p.Pid}
	info.Name, _ = p.NameWithContext(ctx)
	info.Exe, _ = p.ExeWithContext(ctx)
	info.Cmdline, _ = p.CmdlineWithContext(ctx)
	info.Username, _ = p.UsernameWithContext(ctx)
	info.NumThreads, _ = p.NumThreadsWithContext(ctx)

	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		info.CreateTime = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSS = mem.RSS
		info.VMS = mem.VMS
	}

	return info, nil
}
