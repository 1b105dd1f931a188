//go:build !linux

package ptrace

func (h *Handle) attach() error {
	return ErrUnsupported
}

func (h *Handle) chdir(string) error {
	return ErrUnsupported
}

func (h *Handle) detach() error {
	return nil
}
