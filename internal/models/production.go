package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Mode string

const (
	ModeNormal     Mode = "NORMAL"
	ModeProduction Mode = "PRODUCTION"
	ModeEmergency  Mode = "EMERGENCY"
)

func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeProduction || m == ModeEmergency
}

// TeamSnapshot is the denormalized team summary shown next to the stream status.
type TeamSnapshot struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Break     int `json:"break"`
	Offline   int `json:"offline"`
	Emergency int `json:"emergency"`
}

func (t TeamSnapshot) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TeamSnapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = TeamSnapshot{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return errors.New("models: unsupported team snapshot source")
	}
}

// ProductionStatus is the singleton per-tournament broadcast posture.
type ProductionStatus struct {
	TournamentID  string       `gorm:"type:varchar(36);primaryKey" json:"tournamentId"`
	Mode          Mode         `gorm:"type:varchar(20);not null;default:NORMAL" json:"mode"`
	CurrentIssues *string      `gorm:"type:text" json:"currentIssues"`
	StreamQuality string       `gorm:"type:varchar(50);not null;default:HD" json:"streamQuality"`
	UploadSpeed   float64      `gorm:"not null;default:0" json:"uploadSpeed"`
	FeatureTable  string       `gorm:"type:varchar(100);not null;default:'Not Set'" json:"featureTable"`
	TeamStatus    TeamSnapshot `gorm:"type:jsonb" json:"teamStatus"`
	NextSchedule  *time.Time   `json:"nextSchedule"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// DefaultProductionStatus is the row created on first access.
func DefaultProductionStatus(tournamentID string) ProductionStatus {
	return ProductionStatus{
		TournamentID:  tournamentID,
		Mode:          ModeNormal,
		StreamQuality: "HD",
		FeatureTable:  "Not Set",
	}
}
