package model

// Verifiable is the capability shared by every Gold entity: it tracks whether
// a human has verified the row and which extraction log last described it.
// Once verified, automated pipelines must not overwrite the entity.
type Verifiable interface {
	EntityID() int64
	MarkAsManuallyVerified()
	ClearManualVerification()
	UpdateFromExtractionLog(logID int64)
	CanBeUpdatedByAI() bool
}

// Verification is embedded by Gold entities to implement Verifiable.
type Verification struct {
	IsManuallyVerified    bool   `json:"is_manually_verified"`
	LatestExtractionLogID *int64 `json:"latest_extraction_log_id,omitempty"`
}

// MarkAsManuallyVerified protects the entity from further AI updates.
func (v *Verification) MarkAsManuallyVerified() {
	v.IsManuallyVerified = true
}

// ClearManualVerification lifts the protection. Only explicit human actions call this.
func (v *Verification) ClearManualVerification() {
	v.IsManuallyVerified = false
}

// UpdateFromExtractionLog records the most recent log describing the entity.
func (v *Verification) UpdateFromExtractionLog(logID int64) {
	id := logID
	v.LatestExtractionLogID = &id
}

// CanBeUpdatedByAI reports whether automated extraction may overwrite the entity.
func (v *Verification) CanBeUpdatedByAI() bool {
	return !v.IsManuallyVerified
}
