package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/media"
	"github.com/mattcarabine/wedding-website/pkg/types"
)

// setupMediaRoutes wires the gallery listing and the single-shot upload
// fallback for small files
func setupMediaRoutes(api *gin.RouterGroup, mediaService *media.Service) {
	api.GET("/photos", handleListGallery(mediaService))
	api.POST("/photos", handleSingleUpload(mediaService))
}

func handleListGallery(mediaService *media.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := mediaService.ListGallery(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to list gallery")
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
	}
}

func handleSingleUpload(mediaService *media.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "missing file", Code: "VALIDATION_ERROR"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "unreadable file", Code: "VALIDATION_ERROR"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "unreadable file", Code: "VALIDATION_ERROR"})
			return
		}

		item, err := mediaService.UploadSingle(c.Request.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
		if err != nil {
			var verr *media.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: verr.Error(), Code: "VALIDATION_ERROR"})
				return
			}
			log.Error().Err(err).Str("filename", fileHeader.Filename).Msg("single upload failed")
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "upload failed", Code: "INTERNAL_ERROR"})
			return
		}

		c.JSON(http.StatusCreated, item)
	}
}
