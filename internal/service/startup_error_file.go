package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StartupErrorFileName is written into the log directory by
// WriteStartupErrorFile.
const StartupErrorFileName = "startup-error.log"

// WriteStartupErrorFile records why the service failed to start in
// logDir/startup-error.log, overwriting any earlier report. It is meant
// for failures that happen before logging works or that the Event Log
// hides from operators.
func WriteStartupErrorFile(logDir, serviceName string, err error) error {
	if mkErr := os.MkdirAll(logDir, 0755); mkErr != nil {
		return mkErr
	}

	f, ferr := os.Create(filepath.Join(logDir, StartupErrorFileName))
	if ferr != nil {
		return ferr
	}
	defer f.Close()

	ts := time.Now().Format("2006-01-02 15:04:05")
	_, werr := fmt.Fprintf(f, "[%s] STARTUP ERROR service=%s pid=%d\n%v\n", ts, serviceName, os.Getpid(), err)
	return werr
}
