package domain

// OwnerKind is the identity class of whoever submits images.
// It selects the storage namespace of the upload.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerAdmin OwnerKind = "admin"
)

func (o OwnerKind) Valid() bool {
	return o == OwnerUser || o == OwnerAdmin
}

// Identity is the authenticated caller as yielded by the auth middleware.
type Identity struct {
	UserID string
	Kind   OwnerKind
}

func (i Identity) IsAdmin() bool {
	return i.Kind == OwnerAdmin
}

// CanManage reports whether the identity may change or remove the listing.
func (i Identity) CanManage(l *Listing) bool {
	return i.IsAdmin() || (l.PostedBy != "" && l.PostedBy == i.UserID)
}

// OrphanRecord marks store objects that may exist without any record
// referencing them. Either Prefix or Keys is set.
type OrphanRecord struct {
	ID        string   `bson:"_id,omitempty"`
	Prefix    string   `bson:"prefix,omitempty"`
	Keys      []string `bson:"keys,omitempty"`
	ListingID string   `bson:"listingId,omitempty"`
	Reason    string   `bson:"reason"`
	Cause     string   `bson:"cause"`
	Attempts  int      `bson:"attempts"`
	Resolved  bool     `bson:"resolved"`
	CreatedAt int64    `bson:"createdAt"` // unix millis
	LastError string   `bson:"lastError,omitempty"`
}
