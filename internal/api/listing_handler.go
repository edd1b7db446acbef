package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/media"
	"github.com/listings/media-pipeline/internal/service"
)

// imagesField is the multipart field that carries uploaded images.
const imagesField = "images"

// ListingHandler holds the listing service dependency.
type ListingHandler struct {
	listingService service.ListingService
	maxFileSize    int64
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(listingService service.ListingService, maxFileSize int64) *ListingHandler {
	if maxFileSize <= 0 {
		maxFileSize = media.DefaultMaxFileSize
	}
	return &ListingHandler{listingService: listingService, maxFileSize: maxFileSize}
}

// --- Request/Response Structs ---

type CreateListingRequest struct {
	PropertyType    domain.PropertyKind `form:"propertyType" binding:"required"`
	Title           string              `form:"title" binding:"required"`
	Description     string              `form:"description"`
	Address         string              `form:"address"`
	Price           float64             `form:"price"`
	TransactionType int                 `form:"transactionType"`
	Lng             float64             `form:"lng"`
	Lat             float64             `form:"lat"`
	IsFeatured      bool                `form:"isFeatured"`
	Features        string              `form:"features"` // JSON object, optional
}

// GalleryResponse is the reference list after an edit.
type GalleryResponse struct {
	ID         string   `json:"id"`
	ImagesURLs []string `json:"imagesUrls"`
	Thumbnail  string   `json:"thumbnail"`
}

// --- Handler Methods ---

// CreateListing godoc
// @Summary Create a listing with its images
// @Tags Listings
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} domain.Listing
// @Failure 400 {object} gin.H "Invalid fields or no valid images"
// @Failure 504 {object} gin.H "Upload timed out"
// @Router /listings [post]
func (h *ListingHandler) CreateListing(c *gin.Context) {
	identity, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get identity from token")
		return
	}

	var req CreateListingRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	fields := domain.Listing{
		Kind:            req.PropertyType,
		Title:           req.Title,
		Description:     req.Description,
		Address:         req.Address,
		Price:           req.Price,
		TransactionType: domain.TransactionType(req.TransactionType),
		Coords:          []float64{req.Lng, req.Lat},
		IsFeatured:      req.IsFeatured,
	}
	if req.Features != "" {
		if err := json.Unmarshal([]byte(req.Features), &fields.Features); err != nil {
			abortWithError(c, http.StatusBadRequest, "features must be a JSON object")
			return
		}
	}

	files, err := h.readFiles(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	listing, err := h.listingService.SubmitNewListing(c.Request.Context(), identity, fields, files)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// GetListing godoc
// @Summary Get a listing by id
// @Tags Listings
// @Produce json
// @Success 200 {object} domain.Listing
// @Failure 404 {object} gin.H "Listing not found"
// @Router /listings/{id} [get]
func (h *ListingHandler) GetListing(c *gin.Context) {
	listing, err := h.listingService.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// EditImages godoc
// @Summary Add and remove listing images
// @Description New images go first unless position=append. Removed URLs are deleted from storage once the listing no longer references them.
// @Tags Listings
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} GalleryResponse
// @Failure 409 {object} gin.H "Listing changed concurrently"
// @Router /listings/{id}/images [patch]
func (h *ListingHandler) EditImages(c *gin.Context) {
	identity, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get identity from token")
		return
	}

	position, err := media.ParsePosition(c.PostForm("position"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	files, err := h.readFiles(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	input := service.EditImagesInput{
		Files:    files,
		Remove:   c.PostFormArray("remove"),
		Position: position,
	}
	listing, err := h.listingService.EditListingImages(c.Request.Context(), identity, c.Param("id"), input)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GalleryResponse{ID: listing.ShortID, ImagesURLs: listing.ImagesURLs, Thumbnail: listing.Thumbnail})
}

// DeleteListing godoc
// @Summary Delete a listing and its images
// @Tags Listings
// @Success 204
// @Success 202 {object} gin.H "Listing removed, image cleanup deferred"
// @Router /listings/{id} [delete]
func (h *ListingHandler) DeleteListing(c *gin.Context) {
	identity, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get identity from token")
		return
	}

	if err := h.listingService.DeleteListing(c.Request.Context(), identity, c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// readFiles loads the uploaded images into memory. A request without a
// multipart body has no files.
func (h *ListingHandler) readFiles(c *gin.Context) ([]media.File, error) {
	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrInvalidInput, err)
	}

	headers := form.File[imagesField]
	files := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxFileSize {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", media.ErrInvalidInput, fh.Filename, h.maxFileSize)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, media.File{Name: fh.Filename, Data: data, ContentType: fh.Header.Get("Content-Type")})
	}
	return files, nil
}

// writeServiceError maps pipeline and service errors to status codes.
func writeServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var delErr *service.DeletionError
	if errors.As(err, &delErr) && delErr.RecordRemoved {
		c.JSON(http.StatusAccepted, gin.H{"id": delErr.ListingID, "message": "listing removed, image cleanup deferred"})
		return
	}

	switch {
	case errors.Is(err, media.ErrInvalidInput),
		errors.Is(err, media.ErrNoValidFiles),
		errors.Is(err, domain.ErrInvalidListing):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrListingNotFound):
		abortWithError(c, http.StatusNotFound, "Listing not found")
	case errors.Is(err, service.ErrAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEditConflict):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, media.ErrUploadTimeout):
		abortWithError(c, http.StatusGatewayTimeout, "Image upload timed out")
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
