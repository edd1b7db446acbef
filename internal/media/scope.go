// Package media moves listing images between callers, the blob store and
// listing records: batch upload into a per-submission scope, reference list
// reconciliation, and compensating deletes when a later step fails.
package media

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/listings/media-pipeline/internal/domain"
)

const (
	// IDLength is the length of scope ids and listing short ids.
	IDLength = 7
	// idAlphabet leaves out 0/O, 1/l/I so ids survive being read aloud.
	idAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

	NamespaceAdmin = "adminProperties"
	NamespaceUser  = "userProperties"
)

// NewID returns a random IDLength token from the unambiguous alphabet.
func NewID() (string, error) {
	return gonanoid.Generate(idAlphabet, IDLength)
}

// Namespace returns the storage namespace for an owner kind.
func Namespace(owner domain.OwnerKind) (string, error) {
	switch owner {
	case domain.OwnerAdmin:
		return NamespaceAdmin, nil
	case domain.OwnerUser:
		return NamespaceUser, nil
	}
	return "", fmt.Errorf("%w: unknown owner kind %q", ErrInvalidInput, owner)
}

// Scope is the storage namespace of one submission. It is immutable once created.
type Scope struct {
	ID        string
	Owner     domain.OwnerKind
	CreatedAt time.Time
}

// ExistingScope rebuilds the scope of a stored listing.
func ExistingScope(id string, owner domain.OwnerKind) (Scope, error) {
	if len(id) != IDLength {
		return Scope{}, fmt.Errorf("%w: malformed scope id %q", ErrInvalidInput, id)
	}
	if _, err := Namespace(owner); err != nil {
		return Scope{}, err
	}
	return Scope{ID: id, Owner: owner}, nil
}

func (s Scope) Namespace() string {
	ns, _ := Namespace(s.Owner)
	return ns
}

// Prefix is "{namespace}/{id}/". The trailing slash keeps one scope's
// prefix from matching another scope's keys.
func (s Scope) Prefix() string {
	return s.Namespace() + "/" + s.ID + "/"
}

// Key builds "{namespace}/{id}/{unixMillis}_{name}".
func (s Scope) Key(ts time.Time, name string) string {
	return s.Prefix() + strconv.FormatInt(ts.UnixMilli(), 10) + "_" + name
}

// Contains reports whether key is a well-formed key of this scope.
func (s Scope) Contains(key string) bool {
	p, ok := ParseKey(key)
	return ok && p.Namespace == s.Namespace() && p.ScopeID == s.ID
}

// KeyParts is a stored key split back into the pieces it was built from.
type KeyParts struct {
	Namespace string
	ScopeID   string
	Timestamp time.Time
	FileName  string
}

// ParseKey splits a key produced by Scope.Key.
func ParseKey(key string) (KeyParts, bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || (parts[0] != NamespaceAdmin && parts[0] != NamespaceUser) || len(parts[1]) != IDLength {
		return KeyParts{}, false
	}
	millis, name, found := strings.Cut(parts[2], "_")
	if !found || name == "" {
		return KeyParts{}, false
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return KeyParts{}, false
	}
	return KeyParts{
		Namespace: parts[0],
		ScopeID:   parts[1],
		Timestamp: time.UnixMilli(ms).UTC(),
		FileName:  name,
	}, true
}

// cleanFileName keeps the last path element so a name cannot add key segments.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
