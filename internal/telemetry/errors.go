package telemetry

import "github.com/amaresga/simtemp/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("telemetry_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("telemetry_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("telemetry_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("telemetry_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("telemetry_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("telemetry_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
	ErrStoreClosed   = errors.ErrorCode("telemetry_store_closed")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.Register(ErrInvalidConfig, "Invalid history configuration")
	errors.Register(ErrInvalidDBPath, "History database path is empty")
	errors.Register(ErrSchemaInitFailed, "Failed to create history schema")
	errors.Register(ErrSchemaValidationFailed, "Failed to validate history schema")
	errors.Register(ErrSchemaMigrationFailed, "Failed to migrate history schema")
	errors.Register(ErrTransactionFailed, "History transaction failed")
	errors.Register(ErrStorageAccess, "Failed to access sample history")
	errors.Register(ErrStoreClosed, "Sample history is closed")
}
