package metrics

import "github.com/amaresga/simtemp/internal/errors"

const (
	ErrRegisterFailed = errors.ErrorCode("metrics_register_failed")
	ErrServeFailed    = errors.ErrorCode("metrics_serve_failed")
)

func init() {
	errors.Register(ErrRegisterFailed, "Failed to register metrics")
	errors.Register(ErrServeFailed, "Metrics endpoint failed")
}
