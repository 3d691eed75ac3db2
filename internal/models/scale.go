package models

import "time"

// Scale: a bottle scale publishing weights over MQTT. Serial is the topic segment.
type Scale struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TenantID    uint       `gorm:"index;not null" json:"tenant_id"`
	Serial      string     `gorm:"size:64;not null;uniqueIndex" json:"serial"`
	Name        string     `gorm:"size:100" json:"name"`
	ItemID      *uint      `json:"item_id"`
	TareGrams   float64    `gorm:"not null;default:0" json:"tare_grams"`
	BottleGrams float64    `gorm:"not null;default:0" json:"bottle_grams"`
	Online      bool       `gorm:"not null;default:false" json:"online"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ScaleReading struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TenantID         uint      `gorm:"index;not null" json:"tenant_id"`
	ScaleID          uint      `gorm:"index:idx_scale_readings_scale_read;not null" json:"scale_id"`
	GrossGrams       float64   `gorm:"not null" json:"gross_grams"`
	NetGrams         float64   `gorm:"not null" json:"net_grams"`
	EstimatedBottles int       `gorm:"not null" json:"estimated_bottles"`
	ReadAt           time.Time `gorm:"index:idx_scale_readings_scale_read;not null" json:"read_at"`
	CreatedAt        time.Time `json:"created_at"`
}
