package domain

import "time"

type BookStatus string

const (
	BookAvailable BookStatus = "available"
	BookRented    BookStatus = "rented"
	BookExchanged BookStatus = "exchanged"
)

type RequestType string

const (
	RequestRent     RequestType = "rent"
	RequestExchange RequestType = "exchange"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status is a sink: once a request leaves
// pending it never transitions again.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected || s == RequestCancelled
}

type UserRole string

const (
	RoleOwner  UserRole = "owner"
	RoleSeeker UserRole = "seeker"
)

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	PhotoURL     string    `json:"photoUrl,omitempty"`
	Role         UserRole  `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Book is a lending listing. BorrowerID is non-empty exactly when Status is
// rented or exchanged.
type Book struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Genres      []string   `json:"genres"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	CoverURL    string     `json:"coverUrl,omitempty"`
	CoverKey    string     `json:"-"`
	Status      BookStatus `json:"status"`
	BorrowerID  string     `json:"borrowerId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BookRequest is a single lending/exchange proposal. OwnerID is copied from
// the book at creation so authorization checks never need a join; owners do
// not change after creation.
type BookRequest struct {
	ID          string        `json:"id"`
	BookID      string        `json:"bookId"`
	RequesterID string        `json:"requesterId"`
	OwnerID     string        `json:"ownerId"`
	Type        RequestType   `json:"type"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
