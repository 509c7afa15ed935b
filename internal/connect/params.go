package connect

import "strings"

// Provider is the type tag merged into integration parameters on success.
const Provider = "HubSpot"

// Session identifies who is connecting. It is the correlation key for every
// broker call and does not change for the widget's lifetime.
type Session struct {
	UserID string
	OrgID  string
}

// Params is the host application's integration parameter bag. The widget only
// merges type and credentials into a copy; every other key is the owner's.
type Params map[string]any

// Clone returns a shallow copy. Cloning nil yields an empty, non-nil map.
func (p Params) Clone() Params {
	out := make(Params, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Credentials returns the stored credential string, or "" when absent.
func (p Params) Credentials() string {
	if p == nil {
		return ""
	}
	s, _ := p["credentials"].(string)
	return s
}

// HasCredentials reports whether a usable credentials value is present. Empty
// strings and nil count as absent.
func (p Params) HasCredentials() bool {
	if p == nil {
		return false
	}
	v, ok := p["credentials"]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Merge returns a copy of p with type and credentials set.
func (p Params) Merge(integrationType, credentials string) Params {
	out := p.Clone()
	out["type"] = integrationType
	out["credentials"] = credentials
	return out
}
