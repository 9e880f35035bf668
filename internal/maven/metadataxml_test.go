package maven

import (
	"testing"
	"time"

	"github.com/lgulliver/lodestone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMetadataXML_WithVersioningAndPlugins(t *testing.T) {
	record := &types.ArtifactMetadataRecord{
		Latest:      "1.1.0-SNAPSHOT",
		Release:     "1.0.0",
		Versions:    []string{"1.0.0", "1.1.0-SNAPSHOT"},
		LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	plugins := []types.PluginMetadata{
		{Name: "Widget Plugin", Prefix: "widget", ArtifactID: "widget-maven-plugin"},
	}

	out, err := RenderMetadataXML("org.example", "widget", record, plugins)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "<groupId>org.example</groupId>")
	assert.Contains(t, s, "<artifactId>widget</artifactId>")
	assert.Contains(t, s, "<latest>1.1.0-SNAPSHOT</latest>")
	assert.Contains(t, s, "<release>1.0.0</release>")
	assert.Contains(t, s, "<version>1.0.0</version>")
	assert.Contains(t, s, "<version>1.1.0-SNAPSHOT</version>")
	assert.Contains(t, s, "<lastUpdated>20260102030405</lastUpdated>")
	assert.Contains(t, s, "<prefix>widget</prefix>")
}

func TestRenderMetadataXML_NilRecordOmitsVersioning(t *testing.T) {
	out, err := RenderMetadataXML("org.example", "widget", nil, nil)
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, "<versioning>")
	assert.NotContains(t, s, "<plugins>")
}
