package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/uploadserver"
	"github.com/mattcarabine/wedding-website/pkg/types"
)

// setupUploadRoutes wires the chunked upload protocol endpoints
func setupUploadRoutes(api *gin.RouterGroup, uploads *uploadserver.Service, cleaner *uploadserver.CleanupCoordinator) {
	group := api.Group("/upload")

	group.POST("/init", handleUploadInit(uploads))
	group.POST("/chunk", handleUploadChunk(uploads))
	group.POST("/complete", handleUploadComplete(uploads))
	group.POST("/cleanup", handleUploadCleanup(cleaner))
	group.POST("/cleanup/orphans", handleOrphanSweep(cleaner))
}

func handleUploadInit(uploads *uploadserver.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.UploadInitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid JSON request body", Code: "INVALID_JSON"})
			return
		}

		if err := uploads.Init(c.Request.Context(), req); err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.UploadInitResponse{
			Status:      "ok",
			UploadID:    req.UploadID,
			TotalChunks: req.TotalChunks,
		})
	}
}

func handleUploadChunk(uploads *uploadserver.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploadID := c.PostForm("uploadId")
		chunkIndex, err := strconv.Atoi(c.PostForm("chunkIndex"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid chunkIndex", Code: "VALIDATION_ERROR"})
			return
		}
		totalChunks, err := strconv.Atoi(c.PostForm("totalChunks"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid totalChunks", Code: "VALIDATION_ERROR"})
			return
		}

		fileHeader, err := c.FormFile("chunk")
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "missing chunk payload", Code: "VALIDATION_ERROR"})
			return
		}

		chunk, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "unreadable chunk payload", Code: "VALIDATION_ERROR"})
			return
		}
		defer chunk.Close()

		resp, err := uploads.SaveChunk(c.Request.Context(), uploadID, chunkIndex, totalChunks, chunk)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleUploadComplete(uploads *uploadserver.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.UploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid JSON request body", Code: "INVALID_JSON"})
			return
		}

		resp, err := uploads.Complete(c.Request.Context(), req)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleUploadCleanup(cleaner *uploadserver.CleanupCoordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CleanupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid JSON request body", Code: "INVALID_JSON"})
			return
		}

		deleted, failed, err := cleaner.Cleanup(c.Request.Context(), req.UploadID)
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.CleanupResponse{Deleted: deleted, Failed: failed})
	}
}

func handleOrphanSweep(cleaner *uploadserver.CleanupCoordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := cleaner.SweepOrphans(c.Request.Context())
		if err != nil {
			respondUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.OrphanSweepResponse{
			GroupsDeleted: result.GroupsDeleted,
			ChunksDeleted: result.ChunksDeleted,
			ChunksFailed:  result.ChunksFailed,
		})
	}
}

// respondUploadError maps service errors onto the API's error taxonomy
func respondUploadError(c *gin.Context, err error) {
	var verr *uploadserver.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: verr.Error(), Code: "VALIDATION_ERROR"})
	case errors.Is(err, uploadserver.ErrChunkCountMismatch):
		c.JSON(http.StatusConflict, types.ErrorResponse{Error: err.Error(), Code: "CHUNK_COUNT_MISMATCH"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("upload request failed")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"})
	}
}
