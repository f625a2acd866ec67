package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSubstrateDefaultsToTaskPool(t *testing.T) {
	cfg := newConfig(nil)
	sub, count := resolveSubstrate(cfg)
	assert.Equal(t, substrateTask, sub)
	assert.Greater(t, count, 0)
}

func TestResolveSubstrateWithCountZeroIsDirect(t *testing.T) {
	cfg := newConfig([]Option{WithCount(0)})
	sub, _ := resolveSubstrate(cfg)
	assert.Equal(t, substrateDirect, sub)
}

func TestResolveSubstrateInProcessesWins(t *testing.T) {
	cfg := newConfig([]Option{WithCount(8), InProcesses(3)})
	sub, count := resolveSubstrate(cfg)
	assert.Equal(t, substrateProcess, sub)
	assert.Equal(t, 3, count)
}

func TestResolveSubstrateInThreadsWins(t *testing.T) {
	cfg := newConfig([]Option{InProcesses(2), InThreads(5)})
	sub, count := resolveSubstrate(cfg)
	assert.Equal(t, substrateTask, sub)
	assert.Equal(t, 5, count)
}

func TestResolveSubstrateDistributeWinsOverAll(t *testing.T) {
	cfg := newConfig([]Option{InThreads(5), WithDistribute([]string{"a", "b", "c"})})
	sub, count := resolveSubstrate(cfg)
	assert.Equal(t, substrateDistributed, sub)
	assert.Equal(t, 3, count)
}

func TestCheckHookAllowsEmptyRecordedType(t *testing.T) {
	assert.NotPanics(t, func() {
		checkHook("start", "", "int")
	})
}

func TestCheckHookPanicsOnMismatch(t *testing.T) {
	assert.Panics(t, func() {
		checkHook("start", "string", "int")
	})
}
