package ir

import (
	"fmt"
	"strings"
)

// Handle identifies one resource for re-fetching. It wraps a resource ID
// path such as
//
//	/subscriptions/{sub}/resourceGroups/{rg}/providers/Microsoft.KeyVault/vaults/{name}
//
// Handles are immutable once constructed; the zero Handle is invalid.
type Handle struct {
	id string
}

// HandleParts is the name+group+provider tuple form of a resource identity.
// Type may contain a parent path ("vaults/v1/privateEndpointConnections").
type HandleParts struct {
	Subscription  string
	ResourceGroup string
	Namespace     string
	Type          string
	Name          string
}

// NewHandle builds a Handle from a resource ID path.
// The ID must be an absolute path with no empty segments.
func NewHandle(id string) (Handle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Handle{}, fmt.Errorf("resource id is empty")
	}
	if !strings.HasPrefix(id, "/") {
		return Handle{}, fmt.Errorf("resource id %q must start with '/'", id)
	}
	trimmed := strings.TrimSuffix(id, "/")
	for _, seg := range strings.Split(trimmed[1:], "/") {
		if seg == "" {
			return Handle{}, fmt.Errorf("resource id %q contains an empty segment", id)
		}
	}
	return Handle{id: trimmed}, nil
}

// MustHandle is NewHandle for constants in tests. Panics on invalid input.
func MustHandle(id string) Handle {
	h, err := NewHandle(id)
	if err != nil {
		panic(err)
	}
	return h
}

// HandleFromParts builds the resource ID for a name+group+provider tuple.
func HandleFromParts(p HandleParts) (Handle, error) {
	missing := []string{}
	if p.Subscription == "" {
		missing = append(missing, "subscription")
	}
	if p.ResourceGroup == "" {
		missing = append(missing, "resource group")
	}
	if p.Namespace == "" {
		missing = append(missing, "namespace")
	}
	if p.Type == "" {
		missing = append(missing, "resource type")
	}
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return Handle{}, fmt.Errorf("incomplete resource identity: missing %s", strings.Join(missing, ", "))
	}

	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/%s/%s",
		p.Subscription, p.ResourceGroup, p.Namespace, strings.Trim(p.Type, "/"), p.Name)
	return NewHandle(id)
}

// ID returns the resource ID path.
func (h Handle) ID() string {
	return h.id
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return h.id
}

// IsZero reports whether the handle was never constructed.
func (h Handle) IsZero() bool {
	return h.id == ""
}

// Name returns the last path segment of the resource ID.
func (h Handle) Name() string {
	if i := strings.LastIndex(h.id, "/"); i >= 0 {
		return h.id[i+1:]
	}
	return h.id
}

// MarshalText encodes the handle as its resource ID.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.id), nil
}

// UnmarshalText decodes a resource ID, validating it like NewHandle.
func (h *Handle) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Handle{}
		return nil
	}
	parsed, err := NewHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
