package models

import "time"

// HalaqaType distinguishes open circles from approval-gated ones.
type HalaqaType string

const (
	// HalaqaTypeGeneral allows direct self-enrollment.
	HalaqaTypeGeneral HalaqaType = "GENERAL"
	// HalaqaTypePrivate requires an approved join request.
	HalaqaTypePrivate HalaqaType = "PRIVATE"
)

// Halaqa is a Quran study circle led by a single teacher.
type Halaqa struct {
	ID        string     `db:"id" json:"id"`
	AcademyID string     `db:"academy_id" json:"academyId"`
	TeacherID string     `db:"teacher_id" json:"teacherId"`
	Name      string     `db:"name" json:"name"`
	Type      HalaqaType `db:"type" json:"type"`
	Capacity  *int       `db:"capacity" json:"capacity,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// HalaqaFilter narrows directory listings.
type HalaqaFilter struct {
	AcademyID string
	TeacherID string
	Type      HalaqaType
	Page      int
	PageSize  int
}
