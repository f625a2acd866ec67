package distributed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunSlaveRejectsMasterAddrWithoutPipeSeparator(t *testing.T) {
	err := RunSlave(context.Background(), "127.0.0.1:9999", "triple")
	assert.ErrorContains(t, err, "host|port")
}
