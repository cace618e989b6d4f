package errprocess

import (
	"errors"
	"testing"

	"chat_sync_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

var errKind = errors.New("kind")

func TestWrap(t *testing.T) {
	logger.SetNewNop()

	err := Wrap(errKind, "something failed")
	assert.ErrorIs(t, err, errKind)
	assert.Equal(t, "kind: something failed", err.Error())

	cause := errors.New("db down")
	err = WrapErr(errKind, "write", cause)
	assert.ErrorIs(t, err, errKind)
	assert.ErrorIs(t, err, cause)
}
