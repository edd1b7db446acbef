package media

import "fmt"

// Position says where newly uploaded references go.
type Position int

const (
	// Prepend makes the first new upload the thumbnail candidate.
	Prepend Position = iota
	Append
)

func (p Position) String() string {
	if p == Append {
		return "append"
	}
	return "prepend"
}

// ParsePosition accepts "prepend", "append" or "" (prepend).
func ParsePosition(s string) (Position, error) {
	switch s {
	case "", "prepend":
		return Prepend, nil
	case "append":
		return Append, nil
	}
	return Prepend, fmt.Errorf("%w: unknown position %q", ErrInvalidInput, s)
}

// ImageSet is implemented by every record that owns an ordered reference
// list and a thumbnail.
type ImageSet interface {
	References() []string
	SetReferences(urls []string, thumbnail string)
}

// Change is one edit to a reference list.
type Change struct {
	Add      []string
	Position Position
	Remove   []string
}

// UpdateReferences applies change to set: removals against the current list,
// then additions, then the thumbnail is reset to the new first element (or
// cleared). It returns the URLs that were dropped; their objects must be
// deleted by the caller once the record update is durable.
func UpdateReferences(set ImageSet, change Change) (removed []string) {
	current := set.References()

	toRemove := make(map[string]struct{}, len(change.Remove))
	for _, u := range change.Remove {
		toRemove[u] = struct{}{}
	}
	for _, u := range current {
		if _, ok := toRemove[u]; ok {
			removed = append(removed, u)
		}
	}

	refs := addReferences(removeReferences(current, toRemove), change.Add, change.Position)
	set.SetReferences(refs, thumbnailOf(refs))
	return removed
}

// removeReferences returns current without the URLs in toRemove, keeping the
// order of the survivors. URLs that are not present are ignored.
func removeReferences(current []string, toRemove map[string]struct{}) []string {
	out := make([]string, 0, len(current))
	for _, u := range current {
		if _, ok := toRemove[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// addReferences places newOnes, in their own order, before or after current.
func addReferences(current, newOnes []string, pos Position) []string {
	out := make([]string, 0, len(current)+len(newOnes))
	if pos == Append {
		out = append(out, current...)
		return append(out, newOnes...)
	}
	out = append(out, newOnes...)
	return append(out, current...)
}

func thumbnailOf(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	return refs[0]
}
