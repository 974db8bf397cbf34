//go:build !windows

package service

func platformRegistrar() Registrar {
	return nil
}

// IsService is always false without a service control manager.
func IsService() bool {
	return false
}
