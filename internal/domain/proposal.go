package domain

import "time"

// ProposalStatus represents the status of a freelancer's bid.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Proposal represents a freelancer's bid for a job.
type Proposal struct {
	ID                string         `gorm:"type:text;primaryKey" json:"id"`
	JobID             string         `gorm:"type:text;not null;index:idx_proposals_job" json:"job_id"`
	FreelancerAddress string         `gorm:"type:text;not null;index:idx_proposals_freelancer" json:"freelancer_address"`
	CoverLetter       string         `gorm:"type:text" json:"cover_letter"`
	ProposedTimeline  string         `gorm:"type:text" json:"proposed_timeline"`
	PortfolioLinks    StringArray    `gorm:"type:text" json:"portfolio_links"`
	Status            ProposalStatus `gorm:"type:text;index:idx_proposals_status;default:pending" json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Proposal.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Proposal) TableName() string {
	return "proposals"
}

// ProposalInput carries the fields a freelancer submits with a bid.
type ProposalInput struct {
	JobID            string   `json:"job_id"`
	CoverLetter      string   `json:"cover_letter"`
	ProposedTimeline string   `json:"proposed_timeline"`
	PortfolioLinks   []string `json:"portfolio_links"`
}
