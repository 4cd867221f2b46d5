package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/types"
)

const sampleCompose = `
name: my-project
services:
  web:
    image: nginx:1.25
    ports:
      - "80:80"
  db:
    image: postgres:16
    container_name: my-db
`

func TestExtractServices(t *testing.T) {
	services, err := ExtractServices(sampleCompose)
	require.NoError(t, err)
	require.Len(t, services, 2)
	// Sorted by service name.
	assert.Equal(t, types.StackService{Service: "db", Image: "postgres:16"}, services[0])
	assert.Equal(t, types.StackService{Service: "web", Image: "nginx:1.25"}, services[1])
}

func TestExtractServicesInvalidYaml(t *testing.T) {
	_, err := ExtractServices("services: [not a map")
	assert.Error(t, err)
}

func TestExtractServicesEmpty(t *testing.T) {
	services, err := ExtractServices("")
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestExtractAllServices(t *testing.T) {
	files := []types.FileContents{
		{Path: "compose.yaml", Contents: sampleCompose},
		{Path: "broken.yaml", Contents: "services: [broken"},
		{Path: "extra.yaml", Contents: "services:\n  worker:\n    image: worker:1\n  db:\n    image: postgres:15\n"},
	}

	services := ExtractAllServices(files, []string{"web"})
	require.Len(t, services, 2)
	// web is ignored, broken file is skipped, first db definition wins.
	assert.Equal(t, "db", services[0].Service)
	assert.Equal(t, "postgres:16", services[0].Image)
	assert.Equal(t, "worker", services[1].Service)
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "my-project", ProjectName(sampleCompose))
	assert.Equal(t, "", ProjectName("services: {}"))
	assert.Equal(t, "", ProjectName("not: [valid"))
}
