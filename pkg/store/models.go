package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	FullName     string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PhoneNumber  string
	PhotoURL     string
	Role         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID          string         `gorm:"primaryKey"`
	OwnerID     string         `gorm:"not null;index"`
	Title       string         `gorm:"not null"`
	Author      string         `gorm:"not null"`
	Genres      datatypes.JSON `gorm:"type:jsonb"`
	Location    string         `gorm:"not null"`
	Description string         `gorm:"type:text;not null"`
	CoverURL    string
	CoverKey    string
	Status      string    `gorm:"not null;index"`
	BorrowerID  *string   `gorm:"index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type BookRequestModel struct {
	ID          string    `gorm:"primaryKey"`
	BookID      string    `gorm:"not null;index:idx_book_requests_book_status"`
	RequesterID string    `gorm:"not null;index"`
	OwnerID     string    `gorm:"not null;index"`
	Type        string    `gorm:"not null"`
	Status      string    `gorm:"not null;index:idx_book_requests_book_status"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}
