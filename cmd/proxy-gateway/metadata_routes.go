package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/lodestone/internal/coordinator"
	"github.com/lgulliver/lodestone/internal/maven"
)

// handleGetMetadataXML serves maven-metadata.xml for a group/artifact path
// of the form <group-segments>/<artifactId>/maven-metadata.xml.
func handleGetMetadataXML(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("path"), "/")
		path = strings.TrimSuffix(path, "/maven-metadata.xml")

		segments := strings.Split(path, "/")
		if len(segments) < 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata path"})
			return
		}

		groupID := strings.Join(segments[:len(segments)-1], ".")
		artifactID := segments[len(segments)-1]

		record, err := coord.GetArtifactMetadata(c.Request.Context(), groupID, artifactID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		plugins, err := coord.GetPlugins(c.Request.Context(), groupID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if record == nil && len(plugins) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no metadata known for " + groupID + ":" + artifactID})
			return
		}

		body, err := maven.RenderMetadataXML(groupID, artifactID, record, plugins)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/xml", body)
	}
}
