package models

import (
	"gorm.io/datatypes"
)

// Tournament mirrors one row of the upstream tournaments table. Everything
// beyond the identifying columns lives in the jsonb payload; its shape is
// open-ended upstream, so it is kept raw here and decoded on demand.
type Tournament struct {
	ID       int64          `gorm:"primaryKey"`
	Name     string         `gorm:"type:text;not null"`
	Contract *string        `gorm:"type:text"`
	Data     datatypes.JSON `gorm:"type:jsonb"`
}

func (Tournament) TableName() string {
	return "tournaments"
}
