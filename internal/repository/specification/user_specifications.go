package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByEmail filters by exact email.
type ByEmail struct {
	Email string
}

func (s ByEmail) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("email = ?", s.Email)
}

// EmailContains performs the case-insensitive substring match used by the user
// directory search.
type EmailContains struct {
	Query string
}

func (s EmailContains) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("email ILIKE ?", "%"+s.Query+"%")
}

// ExcludeID removes a user from the result set. The directory never returns the
// searching user, even on a self-match.
type ExcludeID struct {
	ID uuid.UUID
}

func (s ExcludeID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id <> ?", s.ID)
}
