package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Object describes a blob that was written to the store.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	URL         string
}

// BlobStore defines the object storage operations the media pipeline relies on.
// Keys are slash separated paths; a prefix groups every key that starts with it.
type BlobStore interface {
	// Put writes data under key. Keys are never reused by callers, so Put
	// does not need to guard against overwrites.
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)

	// DeleteObject removes a single key. Removing a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// DeleteByPrefix removes every object whose key starts with prefix and
	// reports how many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// PublicURL is a pure function of the key.
	PublicURL(key string) string

	// KeyFromURL inverts PublicURL. ok is false for URLs this store did not produce.
	KeyFromURL(rawURL string) (key string, ok bool)
}

// StoreError wraps an infrastructure failure from the object store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// URLResolver maps keys to public URLs under a fixed base and back.
type URLResolver struct {
	base string
}

func NewURLResolver(base string) URLResolver {
	return URLResolver{base: strings.TrimRight(base, "/")}
}

// PublicURL escapes each path segment of key and appends it to the base.
func (r URLResolver) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.base + "/" + strings.Join(segments, "/")
}

func (r URLResolver) KeyFromURL(rawURL string) (string, bool) {
	rest, found := strings.CutPrefix(rawURL, r.base+"/")
	if !found || rest == "" {
		return "", false
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return key, true
}
