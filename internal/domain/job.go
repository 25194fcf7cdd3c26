package domain

import "time"

// JobStatus represents the persisted lifecycle status of a job.
// Values include JobStatusOpen, JobStatusInProgress, JobStatusSubmitted, JobStatusCompleted,
// JobStatusDisputed, JobStatusCancelled, and JobStatusRefunded.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusDisputed   JobStatus = "disputed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusRefunded   JobStatus = "refunded"
)

// Valid reports whether s is one of the known persisted statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusOpen, JobStatusInProgress, JobStatusSubmitted, JobStatusCompleted,
		JobStatusDisputed, JobStatusCancelled, JobStatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled || s == JobStatusRefunded
}

// rank orders the forward path open -> in_progress -> submitted -> completed.
// Statuses off that path rank zero.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusOpen:
		return 1
	case JobStatusInProgress:
		return 2
	case JobStatusSubmitted:
		return 3
	case JobStatusCompleted:
		return 4
	}
	return 0
}

// AtLeast reports whether s is at or beyond other on the forward path.
func (s JobStatus) AtLeast(other JobStatus) bool {
	return s.rank() >= other.rank() && s.rank() > 0
}

// Job represents a work engagement between a client and a freelancer.
type Job struct {
	ID                            string      `gorm:"type:text;primaryKey" json:"id"`
	ClientAddress                 string      `gorm:"type:text;not null;index:idx_jobs_client" json:"client_address"`
	FreelancerAddress             *string     `gorm:"type:text;index:idx_jobs_freelancer" json:"freelancer_address"`
	Title                         string      `gorm:"type:text;not null" json:"title"`
	Description                   string      `gorm:"type:text" json:"description"`
	Category                      string      `gorm:"type:text;index:idx_jobs_category" json:"category"`
	SkillsRequired                StringArray `gorm:"type:text" json:"skills_required"`
	Tags                          StringArray `gorm:"type:text" json:"tags"`
	Budget                        float64     `json:"budget"`
	Deadline                      time.Time   `json:"deadline"`
	Status                        JobStatus   `gorm:"type:text;index:idx_jobs_status;default:open" json:"status"`
	IPFSHash                      string      `gorm:"column:ipfs_hash;type:text" json:"ipfs_hash,omitempty"`
	BlockchainJobID               *int64      `gorm:"index:idx_jobs_blockchain" json:"blockchain_job_id"`
	ClientConfirmedCompletion     bool        `gorm:"default:false" json:"client_confirmed_completion"`
	FreelancerConfirmedCompletion bool        `gorm:"default:false" json:"freelancer_confirmed_completion"`
	DeliverableURL                string      `gorm:"type:text" json:"deliverable_url,omitempty"`
	EscrowAddress                 *string     `gorm:"type:text;index:idx_jobs_escrow" json:"escrow_address"`
	AllowEscrowRevert             bool        `gorm:"default:false" json:"allow_escrow_revert"`
	ProposalCount                 int         `gorm:"default:0" json:"proposal_count"`
	CreatedAt                     time.Time   `json:"created_at"`
	UpdatedAt                     time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "jobs"
}

// Freelancer returns the assigned freelancer address or "" when unassigned.
func (j *Job) Freelancer() string {
	if j.FreelancerAddress == nil {
		return ""
	}
	return *j.FreelancerAddress
}

// HasFreelancer reports whether a freelancer is assigned.
func (j *Job) HasFreelancer() bool {
	return j.Freelancer() != ""
}

// SetFreelancer assigns a freelancer address, normalized to lower case.
func (j *Job) SetFreelancer(addr string) {
	norm := NormalizeAddress(addr)
	if norm == "" {
		j.FreelancerAddress = nil
		return
	}
	j.FreelancerAddress = &norm
}

// Escrow returns the delegated escrow agent address or "".
func (j *Job) Escrow() string {
	if j.EscrowAddress == nil {
		return ""
	}
	return *j.EscrowAddress
}

// AnyConfirmed reports whether either party has confirmed completion.
func (j *Job) AnyConfirmed() bool {
	return j.ClientConfirmedCompletion || j.FreelancerConfirmedCompletion
}

// BothConfirmed reports whether both parties have confirmed completion.
func (j *Job) BothConfirmed() bool {
	return j.ClientConfirmedCompletion && j.FreelancerConfirmedCompletion
}

// OnChain reports whether the job is linked to an escrow contract record.
func (j *Job) OnChain() bool {
	return j.BlockchainJobID != nil
}

// Deletable reports whether the job may be removed.
func (j *Job) Deletable() bool {
	return j.Status == JobStatusOpen || j.Status == JobStatusCancelled
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status            JobStatus
	Category          string
	ClientAddress     string
	FreelancerAddress string
	EscrowAddress     string
	IDs               []string
	OnChainOnly       bool
	Limit             int
	Offset            int
}

// SearchFilter narrows a job search. Query matches title, description,
// category, skills and tags; a job matches Tags when it carries any of them.
// An empty Status means open.
type SearchFilter struct {
	Query    string
	Tags     []string
	Category string
	Status   JobStatus
	Limit    int
}

// JobInput carries the client-editable job fields.
type JobInput struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	SkillsRequired    []string  `json:"skills_required"`
	Tags              []string  `json:"tags"`
	Budget            float64   `json:"budget"`
	Deadline          time.Time `json:"deadline"`
	IPFSHash          string    `json:"ipfs_hash,omitempty"`
	EscrowAddress     string    `json:"escrow_address,omitempty"`
	AllowEscrowRevert bool      `json:"allow_escrow_revert"`
}

// JobPatch carries optional updates for an open job.
type JobPatch struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Category       *string    `json:"category,omitempty"`
	SkillsRequired []string   `json:"skills_required,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Budget         *float64   `json:"budget,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}
