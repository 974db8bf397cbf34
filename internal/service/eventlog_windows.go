//go:build windows

package service

import (
	"fmt"

	"golang.org/x/sys/windows/svc/eventlog"
)

const startupErrorEventID = 1

// ReportStartupError writes a startup error to the Windows Event Log so
// that "net start" and Event Viewer show why the service did not come up,
// even before the logger is initialized.
func ReportStartupError(serviceName string, err error) {
	// idempotent if the source already exists
	_ = eventlog.InstallAsEventCreate(serviceName, eventlog.Error|eventlog.Warning|eventlog.Info)

	elog, openErr := eventlog.Open(serviceName)
	if openErr != nil {
		return
	}
	defer elog.Close()

	elog.Error(startupErrorEventID, fmt.Sprintf("%s failed to start: %v", serviceName, err))
}
