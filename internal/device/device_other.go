//go:build !linux

package device

import "github.com/amaresga/simtemp/internal/errors"

// Open is only implemented on Linux.
func Open(path string) (Handle, error) {
	return nil, errors.New().Wrap(ErrOpenFailed, errors.New().New(errors.ErrNotImplemented)).WithMessage("open " + path)
}
