package publish

import "github.com/amaresga/simtemp/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("publish_invalid_config")
	ErrConnectFailed = errors.ErrorCode("publish_connect_failed")
	ErrEncodeFailed  = errors.ErrorCode("publish_encode_failed")
	ErrFlushFailed   = errors.ErrorCode("publish_flush_failed")
)

func init() {
	errors.Register(ErrInvalidConfig, "Invalid alert publisher configuration")
	errors.Register(ErrConnectFailed, "Failed to connect to alert brokers")
	errors.Register(ErrEncodeFailed, "Failed to encode alert event")
	errors.Register(ErrFlushFailed, "Failed to flush alert events")
}
