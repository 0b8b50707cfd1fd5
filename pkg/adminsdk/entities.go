package adminsdk

import (
	"fmt"
	"strings"
)

// EntityType names a cacheable admin collection.
type EntityType string

const (
	Hospital EntityType = "hospital"
	Doctor   EntityType = "doctor"
	Nurse    EntityType = "nurse"
	User     EntityType = "user"
)

type entitySpec struct {
	path   string
	key    string
	fields []string
}

var entitySpecs = map[EntityType]entitySpec{
	Hospital: {
		path:   "/admin/hospitals",
		key:    "hospitals",
		fields: []string{"name", "email", "phone", "address", "city"},
	},
	Doctor: {
		path:   "/admin/doctors",
		key:    "doctors",
		fields: []string{"name", "full_name", "email", "phone", "license_number", "specialization.name", "hospital.name"},
	},
	Nurse: {
		path:   "/admin/nurses",
		key:    "nurses",
		fields: []string{"name", "full_name", "email", "phone", "hospital.name"},
	},
	User: {
		path:   "/admin/users",
		key:    "users",
		fields: []string{"name", "email", "phone", "role"},
	},
}

// EntityTypes returns every known entity type in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{Hospital, Doctor, Nurse, User}
}

// ParseEntityType accepts singular or plural names in any case.
func ParseEntityType(s string) (EntityType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, e := range EntityTypes() {
		if name == string(e) || name == entitySpecs[e].key {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

func (e EntityType) Valid() bool {
	_, ok := entitySpecs[e]
	return ok
}

func (e EntityType) String() string { return string(e) }

// Path is the collection endpoint, e.g. /admin/doctors.
func (e EntityType) Path() string { return entitySpecs[e].path }

// CollectionKey is the plural key some responses nest items under.
func (e EntityType) CollectionKey() string { return entitySpecs[e].key }

// SearchFields are the dotted record paths that feed search.
func (e EntityType) SearchFields() []string {
	return append([]string(nil), entitySpecs[e].fields...)
}

// RecordPath is the endpoint of a single record.
func (e EntityType) RecordPath(id string) string {
	return e.Path() + "/" + id
}

// Record is one decoded API object.
type Record map[string]any

// Lookup resolves a dotted path through nested objects.
func (r Record) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String renders the value at path for display and search, "" when absent
// or not a scalar.
func (r Record) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, float64, int, int64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// ID returns the record's id field as a string.
func (r Record) ID() string { return r.String("id") }

