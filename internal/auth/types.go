package auth

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// CompanyRef identifies the company a user belongs to.
type CompanyRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PermissionGrant is one entry of a role's grant set.
type PermissionGrant struct {
	Code string `json:"code"`
}

// UserProfile is the signed-in user as returned by the identity API.
// A nil Company marks a superadmin.
type UserProfile struct {
	Name    string      `json:"name"`
	Email   string      `json:"email"`
	Company *CompanyRef `json:"company"`
	Roles   []Role      `json:"roles"`
}

// IsSuperadmin reports whether the profile carries no company affiliation.
func (p *UserProfile) IsSuperadmin() bool {
	return p != nil && p.Company == nil
}

// Clone returns a deep copy.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	if p.Company != nil {
		c := *p.Company
		out.Company = &c
	}
	if p.Roles != nil {
		out.Roles = make([]Role, len(p.Roles))
		for i, r := range p.Roles {
			out.Roles[i] = r.clone()
		}
	}
	return &out
}

// Role is a named bundle of permissions. The identity API sends permissions
// either as a grant set or as a code map, sometimes both; Grants and ByCode
// hold the two shapes side by side.
type Role struct {
	ID     int64
	Name   string
	Grants []PermissionGrant
	ByCode map[string]bool
}

// Allows reports whether the role grants code through either shape.
func (r Role) Allows(code string) bool {
	if r.ByCode[code] {
		return true
	}
	for _, g := range r.Grants {
		if g.Code == code {
			return true
		}
	}
	return false
}

func (r Role) clone() Role {
	r.Grants = slices.Clone(r.Grants)
	r.ByCode = maps.Clone(r.ByCode)
	return r
}

type roleJSON struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Permissions   json.RawMessage `json:"permissions,omitempty"`
	PermissionMap map[string]bool `json:"permission_map,omitempty"`
}

// MarshalJSON writes grants under "permissions" and the code map under
// "permission_map" so both shapes survive a round trip.
func (r Role) MarshalJSON() ([]byte, error) {
	out := roleJSON{ID: r.ID, Name: r.Name, PermissionMap: r.ByCode}
	if len(r.Grants) > 0 {
		raw, err := json.Marshal(r.Grants)
		if err != nil {
			return nil, err
		}
		out.Permissions = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts "permissions" as an array of grants or as a code
// map, plus an optional "permission_map". Permissions in any other shape
// decode to no grants instead of failing the profile, and a map entry that
// is not truthy is skipped on its own.
func (r *Role) UnmarshalJSON(data []byte) error {
	var in struct {
		ID            int64           `json:"id"`
		Name          string          `json:"name"`
		Permissions   json.RawMessage `json:"permissions"`
		PermissionMap json.RawMessage `json:"permission_map"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Role{ID: in.ID, Name: in.Name}
	r.mergeCodeMap(in.PermissionMap)

	raw := bytes.TrimSpace(in.Permissions)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '[':
		var grants []PermissionGrant
		if err := json.Unmarshal(raw, &grants); err == nil {
			r.Grants = grants
			return nil
		}
		// bare code lists: ["ventas_ver", ...]
		var codes []string
		if err := json.Unmarshal(raw, &codes); err != nil {
			return nil
		}
		for _, code := range codes {
			r.Grants = append(r.Grants, PermissionGrant{Code: code})
		}
	case '{':
		r.mergeCodeMap(raw)
	}
	return nil
}

// mergeCodeMap ORs a JSON object of code -> value into ByCode. Anything
// that is not an object is ignored.
func (r *Role) mergeCodeMap(raw json.RawMessage) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return
	}
	if r.ByCode == nil {
		r.ByCode = make(map[string]bool, len(entries))
	}
	for code, v := range entries {
		r.ByCode[code] = r.ByCode[code] || truthy(v)
	}
}

// truthy accepts true, a nonzero number, or a non-empty string that is not
// a spelled-out false ("false", "0").
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		v = strings.TrimSpace(v)
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return v != ""
	default:
		return false
	}
}
