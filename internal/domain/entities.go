package domain

import "time"

// EntityType classifies graph entities.
type EntityType string

const (
	EntityTypeOrganization EntityType = "organization"
	EntityTypeIndividual   EntityType = "individual"
	EntityTypeTeam         EntityType = "team"
	EntityTypeDevice       EntityType = "device"
	EntityTypeOther        EntityType = "other"
)

// ValidEntityTypes lists every accepted entity type, used in validation errors.
var ValidEntityTypes = []EntityType{
	EntityTypeOrganization,
	EntityTypeIndividual,
	EntityTypeTeam,
	EntityTypeDevice,
	EntityTypeOther,
}

// IsValidEntityType reports whether t names a known entity type.
func IsValidEntityType(t EntityType) bool {
	for _, v := range ValidEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Project groups memories, documents, code artifacts and entities.
type Project struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Document is a reference to an external document, linkable to memories.
type Document struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	URI       string    `json:"uri,omitempty" db:"uri"`
	ProjectID *int64    `json:"project_id,omitempty" db:"project_id"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CodeArtifact is a reference to a code location, linkable to memories.
type CodeArtifact struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Path      string    `json:"path,omitempty" db:"path"`
	Language  string    `json:"language,omitempty" db:"language"`
	ProjectID *int64    `json:"project_id,omitempty" db:"project_id"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Entity is a typed node in the knowledge graph (person, org, device, ...).
// AKA carries alternate names searched alongside Name.
type Entity struct {
	ID         int64      `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	CustomType string     `json:"custom_type,omitempty" db:"custom_type"`
	AKA        []string   `json:"aka,omitempty"`
	Notes      string     `json:"notes,omitempty" db:"notes"`
	ProjectID  *int64     `json:"project_id,omitempty" db:"project_id"`
	Tags       []string   `json:"tags"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// EntityRelationship is a directed edge between two entities.
// Unique on (SourceEntityID, TargetEntityID, RelationshipType).
type EntityRelationship struct {
	ID               int64     `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	SourceEntityID   int64     `json:"source_entity_id" db:"source_entity_id"`
	TargetEntityID   int64     `json:"target_entity_id" db:"target_entity_id"`
	RelationshipType string    `json:"relationship_type" db:"relationship_type"`
	Strength         *float64  `json:"strength,omitempty" db:"strength"`
	Confidence       *float64  `json:"confidence,omitempty" db:"confidence"`
	Metadata         []byte    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
