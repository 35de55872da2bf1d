package domain

import "time"

// ExpertServiceTier is a purchasable level of human review.
type ExpertServiceTier struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Price           int64    `json:"price" yaml:"price"`
	TurnaroundHours int      `json:"turnaroundHours" yaml:"turnaround_hours"`
	Includes        []string `json:"includes" yaml:"includes"`
	Recommendation  string   `json:"recommendation" yaml:"recommendation"`
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Rank() int {
	switch u {
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return 0
	}
}

// Max returns the more severe of u and other.
func (u Urgency) Max(other Urgency) Urgency {
	if other.Rank() > u.Rank() {
		return other
	}
	if u == "" {
		return UrgencyLow
	}
	return u
}

type ExpertRequestStatus string

const (
	StatusPendingPayment    ExpertRequestStatus = "pending_payment"
	StatusPendingAssignment ExpertRequestStatus = "pending_assignment"
	StatusAssigned          ExpertRequestStatus = "assigned"
	StatusInReview          ExpertRequestStatus = "in_review"
	StatusCompleted         ExpertRequestStatus = "completed"
	StatusCancelled         ExpertRequestStatus = "cancelled"
)

func (s ExpertRequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Correction is one field an expert changed relative to the AI analysis.
type Correction struct {
	Field          string `json:"field" yaml:"field"`
	OriginalValue  string `json:"originalValue" yaml:"original_value"`
	CorrectedValue string `json:"correctedValue" yaml:"corrected_value"`
	Explanation    string `json:"explanation" yaml:"explanation"`
}

// ExpertRequest is one purchased human review. Tier and item fields are
// snapshots taken at creation and are never re-derived.
type ExpertRequest struct {
	ID                 string              `json:"id"`
	AnalysisID         string              `json:"analysisId"`
	UserID             string              `json:"userId"`
	TierID             string              `json:"tierId"`
	TierName           string              `json:"tierName"`
	Price              int64               `json:"price"`
	Status             ExpertRequestStatus `json:"status"`
	AssignedExpertID   string              `json:"assignedExpertId,omitempty"`
	AssignedExpertName string              `json:"assignedExpertName,omitempty"`
	SubmittedAt        time.Time           `json:"submittedAt"`
	AssignedAt         *time.Time          `json:"assignedAt,omitempty"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty"`
	DueAt              time.Time           `json:"dueAt"`
	ItemName           string              `json:"itemName"`
	ItemCategory       Domain              `json:"itemCategory"`
	EstimatedValue     int64               `json:"estimatedValue"`
	UserNotes          string              `json:"userNotes,omitempty"`
	ExpertNotes        string              `json:"expertNotes,omitempty"`
	ExpertCorrections  []Correction        `json:"expertCorrections,omitempty"`
	FinalReport        string              `json:"finalReport,omitempty"`
}

type Expert struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	Email             string   `json:"email" yaml:"email"`
	SlackID           string   `json:"slackId,omitempty" yaml:"slack_id"`
	Specializations   []Domain `json:"specializations" yaml:"specializations"`
	Certifications    []string `json:"certifications" yaml:"certifications"`
	Rating            float64  `json:"rating" yaml:"rating"`
	CompletedReviews  int      `json:"completedReviews" yaml:"completed_reviews"`
	AverageTurnaround float64  `json:"averageTurnaround" yaml:"average_turnaround_hours"`
	IsActive          bool     `json:"isActive" yaml:"is_active"`
}

func (e Expert) Specializes(d Domain) bool {
	for _, s := range e.Specializations {
		if s == d {
			return true
		}
	}
	return false
}

// ExpertMatch is the result of scoring one expert for one request.
type ExpertMatch struct {
	Expert              Expert   `json:"expert"`
	MatchScore          float64  `json:"matchScore"`
	Reasons             []string `json:"reasons"`
	EstimatedTurnaround float64  `json:"estimatedTurnaround"`
}
