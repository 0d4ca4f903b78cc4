package discussion

import "github.com/google/uuid"

// UnitKey identifies one unit of learning inside a course. It is resolved
// once at the request boundary and passed by value through the whole call
// chain, instead of re-deriving string cache keys at each layer.
type UnitKey struct {
	CourseID    uuid.UUID
	UnitID      uuid.UUID
	ModuleTitle string
	UnitTitle   string
}

func (k UnitKey) Zero() bool {
	return k.CourseID == uuid.Nil || k.UnitID == uuid.Nil
}

// CacheKey is the canonical Redis key for this unit's cached content.
func (k UnitKey) CacheKey() string {
	return "unitcontent:" + k.CourseID.String() + ":" + k.UnitID.String()
}
