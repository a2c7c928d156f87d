package models

import "time"

type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleFieldDirector Role = "FIELD_DIRECTOR"
	RoleFieldMember   Role = "FIELD_MEMBER"
	RoleCamera        Role = "CAMERA"
	RoleProducer      Role = "PRODUCER"
)

type TournamentState string

const (
	TournamentUpcoming  TournamentState = "UPCOMING"
	TournamentActive    TournamentState = "ACTIVE"
	TournamentCompleted TournamentState = "COMPLETED"
)

type User struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(100);not null" json:"name"`
	Email    string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`
}

type Tournament struct {
	ID     string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name   string          `gorm:"type:varchar(200);not null" json:"name"`
	Status TournamentState `gorm:"type:varchar(20);not null" json:"status"`
}

// TournamentMember is a user's membership (and role) in one tournament.
type TournamentMember struct {
	UserID       string `gorm:"type:varchar(36);primaryKey" json:"userId"`
	TournamentID string `gorm:"type:varchar(36);primaryKey" json:"tournamentId"`
	Role         Role   `gorm:"type:varchar(20);not null" json:"role"`
}

type MemberStatus string

const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberBreak     MemberStatus = "BREAK"
	MemberOffline   MemberStatus = "OFFLINE"
	MemberEmergency MemberStatus = "EMERGENCY"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberBreak, MemberOffline, MemberEmergency:
		return true
	}
	return false
}

type TeamMember struct {
	ID           string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	TeamID       string       `gorm:"type:varchar(36);index" json:"teamId"`
	UserID       string       `gorm:"type:varchar(36);index;not null" json:"userId"`
	TournamentID string       `gorm:"type:varchar(36);index;not null" json:"tournamentId"`
	Status       MemberStatus `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type Message struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TournamentID string    `gorm:"type:varchar(36);index;not null" json:"tournamentId"`
	SenderID     string    `gorm:"type:varchar(36);not null" json:"senderId"`
	RecipientID  *string   `gorm:"type:varchar(36);index" json:"recipientId"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Type         string    `gorm:"type:varchar(20);not null;default:GENERAL" json:"type"`
	Priority     string    `gorm:"type:varchar(20);not null;default:MEDIUM" json:"priority"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ChecklistTemplate struct {
	ID           string `gorm:"type:varchar(36);primaryKey" json:"id"`
	TournamentID string `gorm:"type:varchar(36);index;not null" json:"tournamentId"`
	Name         string `gorm:"type:varchar(200);not null" json:"name"`
	IsActive     bool   `gorm:"not null;default:true" json:"isActive"`
}

type ChecklistItem struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID string `gorm:"type:varchar(36);index;not null" json:"templateId"`
	Title      string `gorm:"type:varchar(200);not null" json:"title"`
	Order      int    `gorm:"column:sort_order;not null;default:0" json:"order"`
}

// ChecklistCheck is one user's tick of one item on one day.
type ChecklistCheck struct {
	UserID     string     `gorm:"type:varchar(36);primaryKey" json:"userId"`
	ItemID     string     `gorm:"type:varchar(36);primaryKey" json:"itemId"`
	Date       time.Time  `gorm:"type:date;primaryKey" json:"date"`
	TemplateID string     `gorm:"type:varchar(36);index;not null" json:"templateId"`
	IsChecked  bool       `gorm:"not null" json:"isChecked"`
	CheckedAt  *time.Time `json:"checkedAt"`
}

func (ChecklistCheck) TableName() string { return "user_checklist_items" }
