package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listings/media-pipeline/internal/service"
)

func SetupRoutes(router *gin.Engine, jwtSecret string, listingService service.ListingService, maxFileSize int64) {
	listingHandler := NewListingHandler(listingService, maxFileSize)
	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		// Listings are public to read.
		apiV1.GET("/listings/:id", listingHandler.GetListing)
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		listingGroup := protected.Group("/listings")
		{
			listingGroup.POST("", listingHandler.CreateListing)
			listingGroup.PATCH("/:id/images", listingHandler.EditImages)
			listingGroup.DELETE("/:id", listingHandler.DeleteListing)
		}
	}
}
