package service

// Registration is the single answer to a Register call: either Err, or
// the start arguments and a Session for reporting progress.
type Registration struct {
	Args    []string
	Session Session
	Err     error
}

// Session reports the service's state back to the service control manager.
type Session interface {
	// Running reports that start-up has finished.
	Running()
	// Stopped reports the final state with exitCode and returns once the
	// report has been delivered.
	Stopped(exitCode uint32)
}

// Registrar connects the process to the service control manager.
type Registrar interface {
	// Register starts the registration for name. The returned channel
	// delivers exactly one Registration. onStopRequested is called every
	// time the service control manager asks the service to stop.
	Register(name string, onStopRequested func()) <-chan Registration
}
