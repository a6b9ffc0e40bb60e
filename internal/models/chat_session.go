package models

import "time"

// ChatSession is one controller session. Resets keep the same row and bump
// Resets; the turns of every epoch stay attached to it.
type ChatSession struct {
	ID        string `gorm:"primaryKey;size:36"`
	Backend   string `gorm:"size:255"`
	Document  string `gorm:"size:255"` // most recently ingested document
	Resets    int    `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`

	Turns []ChatTurn `gorm:"foreignKey:SessionID"`
}

// ChatTurn stores a single conversation turn. Sequence is unique within a
// session and never reused, including across resets.
type ChatTurn struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"size:36;not null;uniqueIndex:idx_session_sequence"`
	Sequence   int    `gorm:"not null;uniqueIndex:idx_session_sequence"`
	Epoch      int    `gorm:"not null;default:0"`
	Role       string `gorm:"size:16;not null"` // "user" or "assistant"
	Content    string `gorm:"type:text;not null"`
	RolledBack bool   `gorm:"default:false"`
	CreatedAt  time.Time
}
