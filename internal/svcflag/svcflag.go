// Package svcflag defines the bit-flag vocabularies of the service control
// manager: service type, state, accepted controls, start type, error control
// and service flags, together with the query filters built from them.
//
// Bitmask vocabularies are combined with Fold and split back into their
// members with Decode. Mutually exclusive vocabularies (state, start type,
// error control) are plain ordinals.
package svcflag

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flag is the constraint satisfied by every vocabulary in this package.
type Flag interface {
	~uint32
}

// Fold returns the bitwise OR of all flags. Folding nothing yields 0.
func Fold[F Flag](flags ...F) F {
	var mask F
	for _, f := range flags {
		mask |= f
	}
	return mask
}

// Decode returns the members of vocabulary whose bits are set in mask,
// in vocabulary order.
func Decode[F Flag](mask F, vocabulary []F) []F {
	var set []F
	for _, f := range vocabulary {
		if f != 0 && mask&f == f {
			set = append(set, f)
		}
	}
	return set
}

// ServiceType is a bitmask describing the kind of service. Its unions
// TypeDriver, TypeWin32 and TypeAll double as query filters.
type ServiceType uint32

const (
	KernelDriver       ServiceType = 0x001
	FileSystemDriver   ServiceType = 0x002
	Adapter            ServiceType = 0x004
	RecognizerDriver   ServiceType = 0x008
	Win32OwnProcess    ServiceType = 0x010
	Win32ShareProcess  ServiceType = 0x020
	InteractiveProcess ServiceType = 0x100

	TypeDriver = KernelDriver | FileSystemDriver | RecognizerDriver
	TypeWin32  = Win32OwnProcess | Win32ShareProcess
	TypeAll    = TypeDriver | TypeWin32 | Adapter | InteractiveProcess
)

// ServiceTypes lists the individual service type bits.
var ServiceTypes = []ServiceType{
	KernelDriver,
	FileSystemDriver,
	Adapter,
	RecognizerDriver,
	Win32OwnProcess,
	Win32ShareProcess,
	InteractiveProcess,
}

var serviceTypeLabels = map[ServiceType]string{
	KernelDriver:       "KERNEL_DRIVER",
	FileSystemDriver:   "FILE_SYSTEM_DRIVER",
	Adapter:            "ADAPTER",
	RecognizerDriver:   "RECOGNIZER_DRIVER",
	Win32OwnProcess:    "WIN32_OWN_PROCESS",
	Win32ShareProcess:  "WIN32_SHARE_PROCESS",
	InteractiveProcess: "INTERACTIVE_PROCESS",
}

// filter unions are accepted by ParseServiceType but never produced by String
var serviceTypeUnions = map[string]ServiceType{
	"DRIVER": TypeDriver,
	"WIN32":  TypeWin32,
	"ALL":    TypeAll,
}

// Flags decodes the mask into its individual service type bits.
func (t ServiceType) Flags() []ServiceType {
	return Decode(t, ServiceTypes)
}

func (t ServiceType) String() string {
	return maskString(t, ServiceTypes, serviceTypeLabels)
}

// MarshalJSON encodes the mask as the list of its labels.
func (t ServiceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(labels(t.Flags(), serviceTypeLabels))
}

// ParseServiceType parses a single label, including the DRIVER, WIN32 and
// ALL filter unions.
func ParseServiceType(s string) (ServiceType, error) {
	key := normalize(s)
	if u, ok := serviceTypeUnions[key]; ok {
		return u, nil
	}
	return parseLabel(key, serviceTypeLabels, "service type")
}

// ServiceState is the current state of a service. Exactly one value applies.
type ServiceState uint32

const (
	StateStopped         ServiceState = 1
	StateStartPending    ServiceState = 2
	StateStopPending     ServiceState = 3
	StateRunning         ServiceState = 4
	StateContinuePending ServiceState = 5
	StatePausePending    ServiceState = 6
	StatePaused          ServiceState = 7
)

var serviceStateLabels = map[ServiceState]string{
	StateStopped:         "STOPPED",
	StateStartPending:    "START_PENDING",
	StateStopPending:     "STOP_PENDING",
	StateRunning:         "RUNNING",
	StateContinuePending: "CONTINUE_PENDING",
	StatePausePending:    "PAUSE_PENDING",
	StatePaused:          "PAUSED",
}

func (s ServiceState) String() string {
	return ordinalString(s, serviceStateLabels)
}

func (s ServiceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StateFilter selects services by activity during a query.
type StateFilter uint32

const (
	FilterActive   StateFilter = 0x1
	FilterInactive StateFilter = 0x2
	FilterAll                  = FilterActive | FilterInactive
)

var stateFilterLabels = map[StateFilter]string{
	FilterActive:   "ACTIVE",
	FilterInactive: "INACTIVE",
}

func (f StateFilter) String() string {
	return maskString(f, []StateFilter{FilterActive, FilterInactive}, stateFilterLabels)
}

// ParseStateFilter parses ACTIVE, INACTIVE or ALL.
func ParseStateFilter(s string) (StateFilter, error) {
	key := normalize(s)
	if key == "ALL" {
		return FilterAll, nil
	}
	return parseLabel(key, stateFilterLabels, "state filter")
}

// ControlsAccepted is the bitmask of control requests a running service
// accepts.
type ControlsAccepted uint32

const (
	AcceptStop                  ControlsAccepted = 0x001
	AcceptPauseContinue         ControlsAccepted = 0x002
	AcceptShutdown              ControlsAccepted = 0x004
	AcceptParamChange           ControlsAccepted = 0x008
	AcceptNetBindChange         ControlsAccepted = 0x010
	AcceptHardwareProfileChange ControlsAccepted = 0x020
	AcceptPowerEvent            ControlsAccepted = 0x040
	AcceptSessionChange         ControlsAccepted = 0x080
	AcceptPreShutdown           ControlsAccepted = 0x100
	AcceptTimeChange            ControlsAccepted = 0x200
	AcceptTriggerEvent          ControlsAccepted = 0x400
)

// ControlsAcceptedValues lists the individual accepted-control bits.
var ControlsAcceptedValues = []ControlsAccepted{
	AcceptStop,
	AcceptPauseContinue,
	AcceptShutdown,
	AcceptParamChange,
	AcceptNetBindChange,
	AcceptHardwareProfileChange,
	AcceptPowerEvent,
	AcceptSessionChange,
	AcceptPreShutdown,
	AcceptTimeChange,
	AcceptTriggerEvent,
}

var controlsAcceptedLabels = map[ControlsAccepted]string{
	AcceptStop:                  "STOP",
	AcceptPauseContinue:         "PAUSE_CONTINUE",
	AcceptShutdown:              "SHUTDOWN",
	AcceptParamChange:           "PARAMCHANGE",
	AcceptNetBindChange:         "NETBINDCHANGE",
	AcceptHardwareProfileChange: "HARDWAREPROFILECHANGE",
	AcceptPowerEvent:            "POWEREVENT",
	AcceptSessionChange:         "SESSIONCHANGE",
	AcceptPreShutdown:           "PRESHUTDOWN",
	AcceptTimeChange:            "TIMECHANGE",
	AcceptTriggerEvent:          "TRIGGEREVENT",
}

func (c ControlsAccepted) Flags() []ControlsAccepted {
	return Decode(c, ControlsAcceptedValues)
}

func (c ControlsAccepted) String() string {
	return maskString(c, ControlsAcceptedValues, controlsAcceptedLabels)
}

func (c ControlsAccepted) MarshalJSON() ([]byte, error) {
	return json.Marshal(labels(c.Flags(), controlsAcceptedLabels))
}

// StartType controls when the service control manager starts a service.
type StartType uint32

const (
	BootStart   StartType = 0
	SystemStart StartType = 1
	AutoStart   StartType = 2
	DemandStart StartType = 3
	Disabled    StartType = 4
)

var startTypeLabels = map[StartType]string{
	BootStart:   "BOOT_START",
	SystemStart: "SYSTEM_START",
	AutoStart:   "AUTO_START",
	DemandStart: "DEMAND_START",
	Disabled:    "DISABLED",
}

func (s StartType) String() string {
	return ordinalString(s, startTypeLabels)
}

func (s StartType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseStartType parses labels such as AUTO_START. The _START suffix is
// optional, so "auto" and "demand" are accepted too.
func ParseStartType(s string) (StartType, error) {
	key := normalize(s)
	if key != "DISABLED" && !strings.HasSuffix(key, "_START") {
		key += "_START"
	}
	return parseLabel(key, startTypeLabels, "start type")
}

// ErrorControl sets how the system reacts when a service fails to start.
type ErrorControl uint32

const (
	ErrorIgnore   ErrorControl = 0
	ErrorNormal   ErrorControl = 1
	ErrorSevere   ErrorControl = 2
	ErrorCritical ErrorControl = 3
)

var errorControlLabels = map[ErrorControl]string{
	ErrorIgnore:   "IGNORE",
	ErrorNormal:   "NORMAL",
	ErrorSevere:   "SEVERE",
	ErrorCritical: "CRITICAL",
}

func (e ErrorControl) String() string {
	return ordinalString(e, errorControlLabels)
}

func (e ErrorControl) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func ParseErrorControl(s string) (ErrorControl, error) {
	return parseLabel(normalize(s), errorControlLabels, "error control")
}

// ServiceFlags is the bitmask of extra status flags reported for a service.
type ServiceFlags uint32

const (
	RunsInSystemProcess ServiceFlags = 0x1
)

var ServiceFlagValues = []ServiceFlags{RunsInSystemProcess}

var serviceFlagLabels = map[ServiceFlags]string{
	RunsInSystemProcess: "RUNS_IN_SYSTEM_PROCESS",
}

func (f ServiceFlags) Flags() []ServiceFlags {
	return Decode(f, ServiceFlagValues)
}

func (f ServiceFlags) String() string {
	return maskString(f, ServiceFlagValues, serviceFlagLabels)
}

func (f ServiceFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(labels(f.Flags(), serviceFlagLabels))
}

func labels[F Flag](set []F, names map[F]string) []string {
	out := make([]string, 0, len(set))
	for _, f := range set {
		out = append(out, names[f])
	}
	return out
}

func maskString[F Flag](mask F, vocabulary []F, names map[F]string) string {
	set := Decode(mask, vocabulary)
	parts := labels(set, names)
	if rest := mask &^ Fold(set...); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

func ordinalString[F Flag](v F, names map[F]string) string {
	if s, ok := names[v]; ok {
		return s
	}
	return "UNKNOWN"
}

func parseLabel[F Flag](key string, names map[F]string, kind string) (F, error) {
	for v, name := range names {
		if name == key {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, key)
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
}
