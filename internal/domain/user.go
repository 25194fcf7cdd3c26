package domain

import "time"

// UserRole describes how a wallet participates in the marketplace.
type UserRole string

const (
	UserRoleClient     UserRole = "client"
	UserRoleFreelancer UserRole = "freelancer"
	UserRoleBoth       UserRole = "both"
)

// User is a marketplace participant keyed by lower-cased wallet address.
type User struct {
	WalletAddress   string      `gorm:"type:text;primaryKey" json:"wallet_address"`
	Username        string      `gorm:"type:text;not null" json:"username"`
	Email           string      `gorm:"type:text" json:"email,omitempty"`
	Role            UserRole    `gorm:"type:text;default:both" json:"role"`
	Bio             string      `gorm:"type:text" json:"bio,omitempty"`
	Skills          StringArray `gorm:"type:text" json:"skills"`
	PortfolioURL    string      `gorm:"type:text" json:"portfolio_url,omitempty"`
	AvatarURL       string      `gorm:"type:text" json:"avatar_url,omitempty"`
	ReputationScore float64     `gorm:"default:0" json:"reputation_score"`
	JobsCompleted   int         `gorm:"default:0" json:"jobs_completed"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName returns the database table name for User.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (User) TableName() string {
	return "users"
}

// NewProvisionedUser builds the minimal profile created when an address first
// appears through a proposal, a chain backfill, or a login.
func NewProvisionedUser(addr string) *User {
	norm := NormalizeAddress(addr)
	name := norm
	if len(name) > 8 {
		name = name[:8]
	}
	return &User{
		WalletAddress: norm,
		Username:      "User_" + name,
		Role:          UserRoleBoth,
		Skills:        StringArray{},
	}
}

// UserStats summarizes a user's activity.
type UserStats struct {
	JobsPosted    int64 `json:"jobs_posted"`
	JobsAssigned  int64 `json:"jobs_assigned"`
	JobsCompleted int64 `json:"jobs_completed"`
	TotalJobs     int64 `json:"total_jobs"`
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleClient || r == UserRoleFreelancer || r == UserRoleBoth
}

// UserInput carries the fields of a new profile.
type UserInput struct {
	WalletAddress string   `json:"wallet_address"`
	Username      string   `json:"username"`
	Email         string   `json:"email,omitempty"`
	Role          UserRole `json:"role,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	Skills        []string `json:"skills,omitempty"`
	PortfolioURL  string   `json:"portfolio_url,omitempty"`
	AvatarURL     string   `json:"avatar_url,omitempty"`
}

// UserPatch carries optional profile updates.
type UserPatch struct {
	Username     *string   `json:"username,omitempty"`
	Email        *string   `json:"email,omitempty"`
	Role         *UserRole `json:"role,omitempty"`
	Bio          *string   `json:"bio,omitempty"`
	Skills       []string  `json:"skills,omitempty"`
	PortfolioURL *string   `json:"portfolio_url,omitempty"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
}
