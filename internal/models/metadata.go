package models

import (
	"encoding/json"
	"sort"
)

// ArchiveMetadata is the JSON document stored next to each snapshot.
type ArchiveMetadata struct {
	Date          string           `json:"date"`
	DateTimestamp int64            `json:"date_timestamp"`
	SiteShortName string           `json:"site_short_name"`
	ArchiveReason string           `json:"archive_reason"`
	Course        MetadataCourse   `json:"course"`
	Activity      MetadataActivity `json:"activity"`
	Users         []MetadataUser   `json:"users"`
	// Extra holds top-level fields injected by enrichers.
	Extra map[string]interface{} `json:"-"`
}

type MetadataCourse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	IDNumber  string `json:"idnumber"`
}

type MetadataActivity struct {
	CMID             int64   `json:"cmid"`
	InstanceID       int64   `json:"instanceid"`
	IDNumber         string  `json:"idnumber"`
	Type             string  `json:"type"`
	Name             string  `json:"name"`
	AssessmentMethod *string `json:"assessment_method,omitempty"`
}

// MetadataUser flattens Fields (name variants and profile fields) into the user object.
type MetadataUser struct {
	ID       int64
	FullName string
	IDNumber string
	Email    string
	Fields   map[string]string
	Groups   []string
}

// MarshalJSON implements json.Marshaler.
func (u MetadataUser) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(u.Fields)+5)
	for k, v := range u.Fields {
		out[k] = v
	}
	out["id"] = u.ID
	out["full_name"] = u.FullName
	out["idnumber"] = u.IDNumber
	out["email"] = u.Email
	groups := append([]string{}, u.Groups...)
	sort.Strings(groups)
	out["groups"] = groups
	return json.Marshal(out)
}

// MarshalJSON implements json.Marshaler, merging Extra into the top level.
func (m ArchiveMetadata) MarshalJSON() ([]byte, error) {
	type plain ArchiveMetadata
	if m.Users == nil {
		m.Users = []MetadataUser{}
	}
	base, err := json.Marshal(plain(m))
	if err != nil || len(m.Extra) == 0 {
		return base, err
	}
	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, reserved := merged[k]; reserved {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}
