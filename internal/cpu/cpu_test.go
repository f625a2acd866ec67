package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetNumCPUIsPositive(t *testing.T) {
	assert.Greater(t, GetNumCPU(), 0)
}

func TestSetupWorkerAffinityReturnsCleanup(t *testing.T) {
	cleanup := SetupWorkerAffinity(0)
	assert.NotNil(t, cleanup)
	cleanup()
}
