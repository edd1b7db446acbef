package domain

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PropertyKind distinguishes the listing record kinds that carry images.
type PropertyKind string

const (
	KindApartment PropertyKind = "apartment"
	KindHouse     PropertyKind = "house"
	KindLand      PropertyKind = "land"
	KindSubmitted PropertyKind = "submitted" // proposed by a user, not yet curated
)

// Valid reports whether k is one of the known kinds.
func (k PropertyKind) Valid() bool {
	switch k {
	case KindApartment, KindHouse, KindLand, KindSubmitted:
		return true
	}
	return false
}

// TransactionType mirrors the numeric codes clients already send.
type TransactionType int

const (
	TransactionSale TransactionType = iota + 1
	TransactionRent
)

var ErrInvalidListing = errors.New("invalid listing")

// Gallery is the ordered image reference list of a listing.
// Thumbnail always equals ImagesURLs[0] when the list is non-empty.
type Gallery struct {
	ImagesURLs []string `bson:"imagesUrls" json:"imagesUrls"`
	Thumbnail  string   `bson:"thumbnail" json:"thumbnail"`
}

func (g *Gallery) References() []string { return g.ImagesURLs }

func (g *Gallery) SetReferences(urls []string, thumbnail string) {
	g.ImagesURLs = urls
	g.Thumbnail = thumbnail
}

// Features holds the optional descriptive fields of a property.
type Features struct {
	Rooms            int     `bson:"rooms,omitempty" json:"rooms,omitempty"`
	BuildingType     string  `bson:"buildingType,omitempty" json:"buildingType,omitempty"`
	Comfort          string  `bson:"comfort,omitempty" json:"comfort,omitempty"`
	Partitioning     string  `bson:"partitioning,omitempty" json:"partitioning,omitempty"`
	UsableArea       float64 `bson:"usableArea,omitempty" json:"usableArea,omitempty"`
	TotalUsableArea  float64 `bson:"totalUsableArea,omitempty" json:"totalUsableArea,omitempty"`
	ConstructionYear int     `bson:"constructionYear,omitempty" json:"constructionYear,omitempty"`
	Structure        string  `bson:"structure,omitempty" json:"structure,omitempty"`
}

// Listing is a property document. Apartments, houses, land and user
// submissions share this shape and differ by Kind.
type Listing struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ShortID         string             `bson:"shortId" json:"id"`
	Kind            PropertyKind       `bson:"propertyType" json:"propertyType"`
	OwnerKind       OwnerKind          `bson:"ownerKind" json:"ownerKind"`
	PostedBy        string             `bson:"postedBy" json:"postedBy"`
	Title           string             `bson:"title" json:"title"`
	Description     string             `bson:"description" json:"description"`
	Address         string             `bson:"address" json:"address"`
	Price           float64            `bson:"price" json:"price"`
	TransactionType TransactionType    `bson:"transactionType" json:"transactionType"`
	Coords          []float64          `bson:"coords" json:"coords"` // [lng, lat]
	IsFeatured      bool               `bson:"isFeatured" json:"isFeatured"`
	Features        Features           `bson:"features" json:"features"`

	Gallery `bson:",inline"`

	// ScopeID names the storage scope every image of this listing lives under.
	ScopeID string `bson:"scopeId" json:"-"`
	// Version guards image updates against lost writes.
	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the fields a listing cannot be stored without.
// Images are checked by the upload pipeline, not here.
func (l *Listing) Validate() error {
	var problems []string
	if !l.Kind.Valid() {
		problems = append(problems, "propertyType")
	}
	if strings.TrimSpace(l.Title) == "" {
		problems = append(problems, "title")
	}
	if strings.TrimSpace(l.Description) == "" {
		problems = append(problems, "description")
	}
	if strings.TrimSpace(l.Address) == "" {
		problems = append(problems, "address")
	}
	if l.Price < 0 {
		problems = append(problems, "price")
	}
	if l.TransactionType != TransactionSale && l.TransactionType != TransactionRent {
		problems = append(problems, "transactionType")
	}
	if len(l.Coords) != 2 || l.Coords[0] < -180 || l.Coords[0] > 180 || l.Coords[1] < -90 || l.Coords[1] > 90 {
		problems = append(problems, "coords")
	}
	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

// ValidationError lists the listing fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid listing fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidListing }
