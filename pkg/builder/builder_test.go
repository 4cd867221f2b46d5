package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/komodohq/komodo/pkg/types"
)

func TestInstanceName(t *testing.T) {
	b := &types.Build{}
	b.Name = "api"
	assert.Equal(t, "BUILDER-api-v1.2.3", instanceName(b, types.Version{Major: 1, Minor: 2, Patch: 3}))
}

func TestAgentAddress(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5:8120", agentAddress("10.0.0.5", 0, false))
	assert.Equal(t, "http://10.0.0.5:9000", agentAddress("10.0.0.5", 9000, false))
	assert.Equal(t, "https://10.0.0.5:8120", agentAddress("10.0.0.5", 0, true))
}
