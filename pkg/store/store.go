package store

import (
	"errors"

	"shelfshare/pkg/domain"
)

// Sentinel errors surfaced by conditional transitions. The app layer maps
// these onto its own error taxonomy; they exist so the store can report the
// outcome of a compare-and-swap without the caller re-reading.
var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrRequestNotPending = errors.New("request is not pending")
	ErrBookNotFound      = errors.New("book not found")
	ErrBookNotRented     = errors.New("book is not rented")
)

// BookFilter narrows catalog listings. Text fields match case-insensitive
// substrings; Status matches exactly.
type BookFilter struct {
	Title    string
	Author   string
	Genre    string
	Location string
	Status   domain.BookStatus
}

// Store defines persistence operations for users, books, and book requests.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	DeleteBook(id string) error
	ListBooks(filter BookFilter, page, limit int) ([]domain.Book, int64, error)
	ListBooksByOwner(ownerID string) ([]domain.Book, error)
	ListBooksByBorrower(borrowerID string, status domain.BookStatus) ([]domain.Book, error)

	// requests
	SaveRequest(domain.BookRequest) error
	GetRequest(id string) (domain.BookRequest, bool, error)
	ListRequestsByRequester(requesterID string) ([]domain.BookRequest, error)
	ListRequestsByOwner(ownerID string) ([]domain.BookRequest, error)
	ListPendingRequestsByBook(bookID string) ([]domain.BookRequest, error)
	HasPendingRequest(bookID, requesterID string) (bool, error)

	// AcceptRequest atomically marks the request accepted, rejects every
	// other pending request on the same book, and reassigns the book to the
	// requester (rented for rent, exchanged for exchange). Returns
	// ErrRequestNotFound or ErrRequestNotPending without mutating anything.
	AcceptRequest(id string) (domain.BookRequest, domain.Book, error)

	// UpdateRequestStatus transitions a request from one status to another
	// only if it still holds the expected current status. Returns
	// ErrRequestNotPending when the request exists in a different status.
	UpdateRequestStatus(id string, from, to domain.RequestStatus) (domain.BookRequest, error)

	// ReturnBook resets a rented book to available and clears the borrower.
	// Returns ErrBookNotRented unless the book status is rented.
	ReturnBook(bookID string) (domain.Book, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
