//go:build !windows

package scm

func platformBackend() Backend {
	return nil
}
