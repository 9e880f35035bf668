package main

import (
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/lodestone/internal/coordinator"
	"github.com/lgulliver/lodestone/internal/downloader"
	"github.com/lgulliver/lodestone/internal/maven"
	"github.com/rs/zerolog/log"
)

// repoRoutes registers the client-facing artifact download surface: plain
// artifact paths serve through the coordinator, and maven-metadata.xml
// requests are routed to the derived version/plugin listing instead.
func repoRoutes(router *gin.Engine, coord *coordinator.Coordinator) {
	artifactHandler := handleGetArtifact(coord)
	metadataHandler := handleGetMetadataXML(coord)

	router.GET("/repo/*path", func(c *gin.Context) {
		if strings.HasSuffix(c.Param("path"), "maven-metadata.xml") {
			metadataHandler(c)
			return
		}
		artifactHandler(c)
	})
}

func handleGetArtifact(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("path"), "/")
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path required"})
			return
		}

		ref, err := maven.ParseMavenPath(path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid Maven path: " + err.Error()})
			return
		}

		blob, err := coord.GetArtifact(c.Request.Context(), ref)
		if err != nil {
			writeArtifactError(c, err)
			return
		}
		defer blob.Data.Close()

		if blob.Digests.HasSHA1 {
			c.Header("x-checksum-sha1", hex.EncodeToString(blob.Digests.SHA1[:]))
		}
		if blob.Digests.HasMD5 {
			c.Header("x-checksum-md5", hex.EncodeToString(blob.Digests.MD5[:]))
		}
		c.Header("Content-Type", "application/octet-stream")
		c.Status(http.StatusOK)

		if _, err := io.Copy(c.Writer, blob.Data); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("error streaming artifact body to client")
		}
	}
}

// writeArtifactError maps the coordinator's error taxonomy onto the HTTP
// status codes it implies: a skipped retry is transient (503), a failed
// digest validation is unprocessable (422), and a dangling-reference or
// stored-but-not-found error is an internal consistency fault (500).
func writeArtifactError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrSkippedRecentFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, coordinator.ErrDanglingLocalReference), errors.Is(err, coordinator.ErrStoredButNotFound):
		log.Error().Err(err).Msg("blob store / metadata store consistency error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal consistency error"})
	case errors.Is(err, downloader.ErrFailedValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "upstream artifact failed digest validation"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
