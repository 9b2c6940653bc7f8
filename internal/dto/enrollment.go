package dto

// SelfEnrollRequest enrolls a student directly into a GENERAL halaqa.
type SelfEnrollRequest struct {
	HalaqaID  string `json:"halaqaId" validate:"required"`
	StudentID string `json:"studentId"`
}

// RosterExport is a rendered roster file.
type RosterExport struct {
	Filename    string
	ContentType string
	Content     []byte
}
