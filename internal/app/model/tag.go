package model

import "time"

// Tag describes one physical touchpoint (NFC chip, QR sticker, embedded
// link) and the destination its scans redirect to.
type Tag struct {
	ID        string    `db:"id" gorm:"primaryKey;size:36"`
	Name      string    `db:"name" gorm:"size:200;not null"`
	TargetURL string    `db:"target_url" gorm:"type:text;not null"`
	Campaign  string    `db:"campaign" gorm:"size:200"`
	Active    bool      `db:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}
