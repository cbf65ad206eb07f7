package app

import "errors"

// Sentinel errors returned by app operations. Messages are user-facing.
var (
	// auth
	ErrInvalidCredentials = errors.New("incorrect email address or password")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")
	ErrSignupFields       = errors.New("full name, email and password are required")
	ErrInvalidRole        = errors.New("role must be owner or seeker")
	ErrWrongPassword      = errors.New("current password is incorrect")

	// catalog
	ErrBookNotFound      = errors.New("book not found")
	ErrBookFieldsMissing = errors.New("title, author, genres, location and description are required")
	ErrNotBookOwner      = errors.New("only the owner can modify this book")
	ErrBookNotRented     = errors.New("only rented books can be marked as returned")
	ErrNotReturnable     = errors.New("you are not authorized to return this book")

	// request ledger
	ErrRequestNotFound   = errors.New("request not found")
	ErrOwnBookRequest    = errors.New("cannot request own book")
	ErrDuplicateRequest  = errors.New("a pending request for this book already exists")
	ErrInvalidRequestTyp = errors.New("request type must be rent or exchange")
	ErrRequestNotPending = errors.New("request is no longer pending")
	ErrNotRequestOwner   = errors.New("only the book owner can review this request")
	ErrNotRequester      = errors.New("only the requester can cancel this request")
	ErrNotParticipant    = errors.New("only the requester or owner can view this request")
)
