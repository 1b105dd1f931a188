//go:build linux && !amd64

package ptrace

const injectionSupported = false

func injectChdir(*Handle, string) error {
	return ErrUnsupported
}
