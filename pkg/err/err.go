package errprocess

import (
	"fmt"

	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Wrap log a failure at warn level and return it wrapped in kind, so errors.Is(err, kind) holds
func Wrap(kind error, errMsg string, fields ...zap.Field) error {
	logger.Log.Warn(errMsg, append(fields, zap.String("kind", kind.Error()))...)
	return fmt.Errorf("%w: %s", kind, errMsg)
}

// WrapErr like Wrap but keeps the cause in the chain
func WrapErr(kind error, errMsg string, cause error, fields ...zap.Field) error {
	logger.Log.Warn(errMsg, append(fields, zap.String("kind", kind.Error()), zap.Error(cause))...)
	return fmt.Errorf("%w: %s: %w", kind, errMsg, cause)
}
