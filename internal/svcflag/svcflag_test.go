package svcflag

import (
	"encoding/json"
	"testing"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name  string
		flags []ServiceType
		want  ServiceType
	}{
		{name: "empty", flags: []ServiceType{}, want: 0},
		{name: "nil", flags: nil, want: 0},
		{name: "single", flags: []ServiceType{Win32OwnProcess}, want: 0x010},
		{name: "two", flags: []ServiceType{Win32OwnProcess, InteractiveProcess}, want: 0x110},
		{name: "duplicates", flags: []ServiceType{Adapter, Adapter}, want: Adapter},
		{name: "unions", flags: []ServiceType{TypeDriver, TypeWin32}, want: 0x03b},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fold(tt.flags...); got != tt.want {
				t.Errorf("Fold(%v) = 0x%x, want 0x%x", tt.flags, uint32(got), uint32(tt.want))
			}
		})
	}
}

func TestFold_EqualsOrOfElements(t *testing.T) {
	// every subset of the service type vocabulary
	for subset := 0; subset < 1<<len(ServiceTypes); subset++ {
		var flags []ServiceType
		var want uint32
		for i, f := range ServiceTypes {
			if subset&(1<<i) != 0 {
				flags = append(flags, f)
				want |= uint32(f)
			}
		}
		if got := Fold(flags...); uint32(got) != want {
			t.Fatalf("Fold(%v) = 0x%x, want 0x%x", flags, uint32(got), want)
		}
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	for subset := 0; subset < 1<<len(ControlsAcceptedValues); subset++ {
		var mask ControlsAccepted
		for i, f := range ControlsAcceptedValues {
			if subset&(1<<i) != 0 {
				mask |= f
			}
		}
		if got := Fold(mask.Flags()...); got != mask {
			t.Fatalf("Fold(Decode(0x%x)) = 0x%x", uint32(mask), uint32(got))
		}
	}
}

func TestDecode_VocabularyOrder(t *testing.T) {
	got := Decode(InteractiveProcess|KernelDriver|Win32OwnProcess, ServiceTypes)
	want := []ServiceType{KernelDriver, Win32OwnProcess, InteractiveProcess}

	if len(got) != len(want) {
		t.Fatalf("Decode returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Decode()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecode_Zero(t *testing.T) {
	if got := ServiceFlags(0).Flags(); len(got) != 0 {
		t.Errorf("expected no flags for 0, got %v", got)
	}
}

func TestFilterUnions(t *testing.T) {
	if TypeAll != TypeDriver|TypeWin32|Adapter|InteractiveProcess {
		t.Errorf("TypeAll = 0x%x", uint32(TypeAll))
	}
	if TypeAll != 0x13f {
		t.Errorf("TypeAll = 0x%x, want 0x13f", uint32(TypeAll))
	}
	if TypeDriver != 0x00b {
		t.Errorf("TypeDriver = 0x%x, want 0xb", uint32(TypeDriver))
	}
	if TypeWin32 != 0x030 {
		t.Errorf("TypeWin32 = 0x%x, want 0x30", uint32(TypeWin32))
	}
	if FilterAll != FilterActive|FilterInactive || uint32(FilterAll) != 3 {
		t.Errorf("FilterAll = %d, want 3", FilterAll)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"single type", Win32OwnProcess.String(), "WIN32_OWN_PROCESS"},
		{"type mask", (Win32ShareProcess | InteractiveProcess).String(), "WIN32_SHARE_PROCESS|INTERACTIVE_PROCESS"},
		{"unknown bits", ServiceType(0x010 | 0x8000).String(), "WIN32_OWN_PROCESS|0x8000"},
		{"zero mask", ServiceType(0).String(), "0"},
		{"state", StateRunning.String(), "RUNNING"},
		{"unknown state", ServiceState(42).String(), "UNKNOWN"},
		{"start type", Disabled.String(), "DISABLED"},
		{"error control", ErrorSevere.String(), "SEVERE"},
		{"controls", (AcceptStop | AcceptShutdown).String(), "STOP|SHUTDOWN"},
		{"filter all", FilterAll.String(), "ACTIVE|INACTIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_StatusShape(t *testing.T) {
	v := struct {
		ServiceType      ServiceType      `json:"serviceType"`
		State            ServiceState     `json:"state"`
		ControlsAccepted ControlsAccepted `json:"controlsAccepted"`
		ServiceFlags     ServiceFlags     `json:"serviceFlags"`
		StartType        StartType        `json:"startType"`
	}{
		ServiceType:      Win32OwnProcess,
		State:            StateStopPending,
		ControlsAccepted: AcceptStop | AcceptPreShutdown,
		StartType:        DemandStart,
	}

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"serviceType":["WIN32_OWN_PROCESS"],"state":"STOP_PENDING","controlsAccepted":["STOP","PRESHUTDOWN"],"serviceFlags":[],"startType":"DEMAND_START"}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestParse(t *testing.T) {
	if v, err := ParseServiceType("win32-own-process"); err != nil || v != Win32OwnProcess {
		t.Errorf("ParseServiceType = %v, %v", v, err)
	}
	if v, err := ParseServiceType("driver"); err != nil || v != TypeDriver {
		t.Errorf("ParseServiceType(driver) = %v, %v", v, err)
	}
	if _, err := ParseServiceType("daemon"); err == nil {
		t.Error("expected error for unknown service type")
	}
	if v, err := ParseStateFilter("all"); err != nil || v != FilterAll {
		t.Errorf("ParseStateFilter(all) = %v, %v", v, err)
	}
	if v, err := ParseStateFilter("Inactive"); err != nil || v != FilterInactive {
		t.Errorf("ParseStateFilter(Inactive) = %v, %v", v, err)
	}
	if v, err := ParseStartType("demand"); err != nil || v != DemandStart {
		t.Errorf("ParseStartType(demand) = %v, %v", v, err)
	}
	if v, err := ParseStartType("DISABLED"); err != nil || v != Disabled {
		t.Errorf("ParseStartType(DISABLED) = %v, %v", v, err)
	}
	if v, err := ParseStartType("boot_start"); err != nil || v != BootStart {
		t.Errorf("ParseStartType(boot_start) = %v, %v", v, err)
	}
	if v, err := ParseErrorControl("critical"); err != nil || v != ErrorCritical {
		t.Errorf("ParseErrorControl(critical) = %v, %v", v, err)
	}
}
