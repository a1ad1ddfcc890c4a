package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/guestbook"
	"github.com/mattcarabine/wedding-website/pkg/types"
)

func setupGuestbookRoutes(api *gin.RouterGroup, guestbookService *guestbook.Service) {
	api.GET("/guestbook", handleListMessages(guestbookService))
	api.POST("/guestbook", handleCreateMessage(guestbookService))
}

func handleListMessages(guestbookService *guestbook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, err := guestbookService.List(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to list guest messages")
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
	}
}

func handleCreateMessage(guestbookService *guestbook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Author  string `json:"author"`
			Message string `json:"message"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid JSON request body", Code: "INVALID_JSON"})
			return
		}

		entry, err := guestbookService.Create(c.Request.Context(), req.Author, req.Message)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
			return
		}

		c.JSON(http.StatusCreated, entry)
	}
}
