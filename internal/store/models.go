package store

import (
	"time"

	"github.com/mpromonet/gin-spotdetect/internal/domain"
)

type User struct {
	ID           uint        `gorm:"primaryKey"`
	Username     string      `gorm:"uniqueIndex;not null"`
	PasswordHash string      `gorm:"not null"`
	Name         string
	Contact      string
	UserType     domain.Role `gorm:"not null;default:user"`
	CreatedAt    time.Time
}

const (
	SpaceAvailable   = "available"
	SpaceOccupied    = "occupied"
	SpaceMaintenance = "maintenance"
)

var SpaceAvailabilities = []string{SpaceAvailable, SpaceOccupied, SpaceMaintenance}

type Space struct {
	SpaceID      uint   `gorm:"primaryKey"`
	Location     string `gorm:"not null"`
	Capacity     int    `gorm:"not null"`
	Availability string `gorm:"not null;default:available"`
}

const (
	GateOpen        = "open"
	GateClosed      = "closed"
	GateMaintenance = "maintenance"
	GateCrowded     = "crowded"
)

// AdminGateStatuses are settable from the admin view. Staff may also flag a
// gate as crowded.
var (
	AdminGateStatuses = []string{GateOpen, GateClosed, GateMaintenance}
	StaffGateStatuses = []string{GateOpen, GateClosed, GateMaintenance, GateCrowded}
)

type Gate struct {
	GateID   uint   `gorm:"primaryKey"`
	Name     string `gorm:"not null"`
	Location string
	Status   string `gorm:"not null;default:open"`
}

type Staff struct {
	StaffID uint   `gorm:"primaryKey"`
	UserID  uint   `gorm:"uniqueIndex;not null"`
	Name    string `gorm:"not null"`
	Role    string
	Contact string
}

func (Staff) TableName() string { return "staff" }

// StaffGate assigns a gate to a staff member for monitoring.
type StaffGate struct {
	StaffID uint `gorm:"primaryKey"`
	GateID  uint `gorm:"primaryKey"`
}

type Allocation struct {
	ID        uint `gorm:"primaryKey"`
	SpaceID   uint `gorm:"index;not null"`
	UserID    uint `gorm:"index;not null"`
	Timestamp time.Time
}

// AllocationView is an allocation joined with its space.
type AllocationView struct {
	ID        uint
	SpaceID   uint
	Location  string
	Capacity  int
	Timestamp time.Time
}

const (
	ModelActive   = "active"
	ModelInactive = "inactive"
	ModelTesting  = "testing"
)

var ModelStatuses = []string{ModelActive, ModelInactive, ModelTesting}

type DetectionModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Version   string `gorm:"not null"`
	Status    string `gorm:"not null;default:testing"`
	CreatedAt time.Time
}

// Spot is one row of detection history. Filename is the name the user
// uploaded, Media the annotated copy under the media directory.
type Spot struct {
	ID       uint             `gorm:"primaryKey"`
	Username string           `gorm:"index;not null"`
	Filename string           `gorm:"not null"`
	Media    string           `gorm:"not null;default:''"`
	Count    int              `gorm:"not null"`
	Type     domain.MediaKind `gorm:"not null"`
	Date     time.Time        `gorm:"index"`
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
