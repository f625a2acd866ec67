package sentinel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassNameForRecognizesSentinels(t *testing.T) {
	assert.Equal(t, BreakClassName, ClassNameFor(ErrBreak))
	assert.Equal(t, KillClassName, ClassNameFor(ErrKill))
	assert.Equal(t, "*errors.errorString", ClassNameFor(errors.New("boom")))
}

func TestFromWireRoundTripsSentinels(t *testing.T) {
	assert.ErrorIs(t, FromWire(BreakClassName, "break"), ErrBreak)
	assert.ErrorIs(t, FromWire(KillClassName, "kill"), ErrKill)

	var undumpable *UndumpableError
	err := FromWire(UndumpableClassName, "couldn't encode")
	assert.ErrorAs(t, err, &undumpable)
	assert.Equal(t, "couldn't encode", undumpable.Original)

	var remote *RemoteError
	err = FromWire("some.CustomError", "custom failure")
	assert.ErrorAs(t, err, &remote)
	assert.Equal(t, "some.CustomError", remote.ClassName)
}

func TestClassifyRecoversSentinelIdentityFromRemoteError(t *testing.T) {
	wrapped := FromWire(KillClassName, "kill")
	assert.Equal(t, ErrKill, Classify(wrapped))
}
