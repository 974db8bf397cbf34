// Package scm is a client for the service control manager. It lists,
// inspects, creates, reconfigures, removes, starts and stops service
// registrations through a Backend; the Windows backend talks to the real
// service control manager and other platforms have none.
package scm

import (
	"context"

	"servicectl/internal/svcflag"
)

// Config is the configuration of a service registration.
type Config struct {
	ServiceType      svcflag.ServiceType  `json:"serviceType"`
	StartType        svcflag.StartType    `json:"startType"`
	ErrorControl     svcflag.ErrorControl `json:"errorControl"`
	Dependencies     []string             `json:"dependencies"`
	BinaryPathName   string               `json:"binaryPathName,omitempty"`
	LoadOrderGroup   string               `json:"loadOrderGroup,omitempty"`
	ServiceStartName string               `json:"serviceStartName,omitempty"`
	DisplayName      string               `json:"displayName,omitempty"`
	Description      string               `json:"description,omitempty"`
}

// ConfigDisplay is a Config as read back from the backend. TagID is
// assigned by the backend and cannot be set.
type ConfigDisplay struct {
	Config
	TagID uint32 `json:"tagId"`
}

// CreateOptions describes a new service. BinaryPathName is required; nil
// or zero fields take the documented defaults.
type CreateOptions struct {
	BinaryPathName string
	// ServiceType is folded into one mask; nil means WIN32_OWN_PROCESS.
	ServiceType []svcflag.ServiceType
	// StartType defaults to AUTO_START.
	StartType *svcflag.StartType
	// ErrorControl defaults to NORMAL.
	ErrorControl     *svcflag.ErrorControl
	Dependencies     []string
	LoadOrderGroup   string
	ServiceStartName string
	DisplayName      string
	Description      string
	// Password is passed to the backend for this call only.
	Password string
}

// ChangeOptions is a partial update. Nil fields are left untouched; a
// non-nil empty Dependencies clears the dependency list.
type ChangeOptions struct {
	ServiceType      []svcflag.ServiceType
	StartType        *svcflag.StartType
	ErrorControl     *svcflag.ErrorControl
	Dependencies     []string
	BinaryPathName   *string
	LoadOrderGroup   *string
	ServiceStartName *string
	DisplayName      *string
	Description      *string
	Password         *string
}

// CreateRequest is the resolved descriptor handed to Backend.CreateService.
type CreateRequest struct {
	Config
	Password string
}

// ChangeRequest is the resolved partial update handed to
// Backend.ChangeConfig. A nil ServiceType means no type change, which is
// distinct from a zero mask.
type ChangeRequest struct {
	ServiceType      *svcflag.ServiceType
	StartType        *svcflag.StartType
	ErrorControl     *svcflag.ErrorControl
	Dependencies     []string
	BinaryPathName   *string
	LoadOrderGroup   *string
	ServiceStartName *string
	DisplayName      *string
	Description      *string
	Password         *string
}

// Status is a snapshot of a service's runtime state.
type Status struct {
	ServiceType             svcflag.ServiceType      `json:"serviceType"`
	State                   svcflag.ServiceState     `json:"currentState"`
	ControlsAccepted        svcflag.ControlsAccepted `json:"controlsAccepted"`
	Win32ExitCode           uint32                   `json:"win32ExitCode"`
	ServiceSpecificExitCode uint32                   `json:"serviceSpecificExitCode"`
	CheckPoint              uint32                   `json:"checkPoint"`
	WaitHint                uint32                   `json:"waitHint"`
	ProcessID               uint32                   `json:"processId"`
	ServiceFlags            svcflag.ServiceFlags     `json:"serviceFlags"`
}

// EnumEntry is one service as returned by Enumerate.
type EnumEntry struct {
	Status
	DisplayName string `json:"displayName,omitempty"`
}

// Backend is the boundary to the native service control manager. Masks
// arrive already folded; a zero mask matches nothing.
type Backend interface {
	QueryNames(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) ([]string, error)
	QueryAll(typeMask svcflag.ServiceType, stateMask svcflag.StateFilter) (map[string]EnumEntry, error)
	GetConfig(name string) (ConfigDisplay, error)
	GetStatus(name string) (Status, error)
	StartService(ctx context.Context, name string) error
	StopService(ctx context.Context, name string) error
	ChangeConfig(name string, req ChangeRequest) error
	CreateService(name string, req CreateRequest) error
	DeleteService(name string) error
}
