//go:build linux

package device

import (
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
	"golang.org/x/sys/unix"
)

type fileHandle struct {
	path string
	fd   int
	// mu is held shared by every fd operation and exclusively by Close, so
	// the descriptor is never reused while a read is in flight.
	mu  sync.RWMutex
	buf [record.Size]byte
}

// Open opens path in non-blocking mode.
func Open(path string) (Handle, error) {
	errFactory := errors.New()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errFactory.WithData(ErrDeviceNotFound, path)
		}
		return nil, errFactory.Wrap(ErrOpenFailed, err).WithMessage("stat " + path)
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, errFactory.WithData(ErrDeviceNotFound, path)
		}
		return nil, errFactory.Wrap(ErrOpenFailed, err).WithMessage("open " + path)
	}

	logger.Debug().Str("path", path).Int("fd", fd).Msg("Device opened")

	return &fileHandle{path: path, fd: fd}, nil
}

func (h *fileHandle) Path() string {
	return h.path
}

func (h *fileHandle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fd < 0
}

func (h *fileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return nil
	}

	err := unix.Close(h.fd)
	h.fd = -1
	logger.Debug().Str("path", h.path).Msg("Device closed")
	if err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err).WithMessage("close " + h.path)
	}

	return nil
}

func (h *fileHandle) ReadSample(timeout time.Duration) (record.Sample, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.fd < 0 {
		return record.Sample{}, errors.New().New(ErrDeviceClosed)
	}

	ready, err := h.wait(timeout)
	if err != nil {
		return record.Sample{}, err
	}
	if !ready {
		return record.Sample{}, errTimeout
	}

	n, err := unix.Read(h.fd, h.buf[:])
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return record.Sample{}, errTimeout
	case err == unix.ENODEV || err == unix.EBADF || err == unix.EIO:
		return record.Sample{}, errors.New().Wrap(ErrHandleLost, err)
	case err != nil:
		return record.Sample{}, errors.New().Wrap(ErrReadFailed, err)
	case n < record.Size:
		logger.Debug().Int("bytes", n).Msg("Short read, waiting for a whole record")
		return record.Sample{}, errTimeout
	}

	return record.Decode(h.buf[:n])
}

// wait polls for readability. EINTR restarts the wait with the remaining time.
func (h *fileHandle) wait(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}

	for {
		n, err := unix.Poll(fds, pollMillis(time.Until(deadline)))
		if err == unix.EINTR {
			if time.Until(deadline) <= 0 {
				return false, nil
			}
			continue
		}
		if err != nil {
			return false, errors.New().Wrap(ErrReadFailed, err).WithMessage("poll " + h.path)
		}
		if n == 0 {
			return false, nil
		}

		revents := fds[0].Revents
		if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, errors.New().WithData(ErrHandleLost, struct {
				Path    string
				Revents int16
			}{
				Path:    h.path,
				Revents: revents,
			})
		}
		if revents&unix.POLLIN != 0 {
			return true, nil
		}
		if revents&unix.POLLHUP != 0 {
			return false, errors.New().WithData(ErrHandleLost, h.path)
		}

		return false, nil
	}
}

// pollMillis rounds up so a positive timeout never degrades into a busy probe.
func pollMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int((d + time.Millisecond - 1) / time.Millisecond)
}

func (h *fileHandle) ioctl(req uintptr, arg unsafe.Pointer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.fd < 0 {
		return errors.New().New(ErrDeviceClosed)
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}

func (h *fileHandle) GetConfig() (Config, error) {
	var raw rawConfig
	if err := h.ioctl(iocGetConfig, unsafe.Pointer(&raw)); err != nil {
		return Config{}, wrapIoctl(err, "get_config")
	}

	return fromRawConfig(raw), nil
}

// SetConfig validates cfg, writes the configuration block and then applies
// the enabled state. If the enable call fails the previous block is restored.
func (h *fileHandle) SetConfig(cfg Config) error {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return err
	}

	prev, prevErr := h.GetConfig()

	raw := toRawConfig(cfg)
	if err := h.ioctl(iocSetConfig, unsafe.Pointer(&raw)); err != nil {
		if IsHandleLost(err) {
			return err
		}
		return errFactory.Wrap(ErrConfigRejected, err)
	}

	toggle := h.Disable
	if cfg.Enabled {
		toggle = h.Enable
	}
	if err := toggle(); err != nil {
		if prevErr == nil {
			restore := toRawConfig(prev)
			if rerr := h.ioctl(iocSetConfig, unsafe.Pointer(&restore)); rerr != nil {
				logger.Warn().Err(rerr).Msg("Failed to restore previous device configuration")
			}
		}
		return errFactory.Wrap(ErrConfigRejected, err)
	}

	logger.Debug().
		Uint32("sampling_ms", cfg.SamplingMs).
		Int32("threshold_mC", cfg.ThresholdMC).
		Str("mode", cfg.Mode.String()).
		Bool("enabled", cfg.Enabled).
		Msg("Device configuration applied")

	return nil
}

func (h *fileHandle) GetStats() (DriverStats, error) {
	var raw rawStats
	if err := h.ioctl(iocGetStats, unsafe.Pointer(&raw)); err != nil {
		return DriverStats{}, wrapIoctl(err, "get_stats")
	}

	return fromRawStats(raw), nil
}

func (h *fileHandle) ResetStats() error {
	return wrapIoctl(h.ioctl(iocResetStats, nil), "reset_stats")
}

func (h *fileHandle) Enable() error {
	return wrapIoctl(h.ioctl(iocEnable, nil), "enable")
}

func (h *fileHandle) Disable() error {
	return wrapIoctl(h.ioctl(iocDisable, nil), "disable")
}

func (h *fileHandle) FlushBuffer() error {
	return wrapIoctl(h.ioctl(iocFlushBuffer, nil), "flush_buffer")
}

func wrapIoctl(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsHandleLost(err) {
		return err
	}

	return errors.New().Wrap(ErrIoctlFailed, err).WithMessage("ioctl " + op)
}
