package app

import (
	"fmt"
	"strings"
	"time"

	"shelfshare/internal/events"
	"shelfshare/internal/util"
	"shelfshare/pkg/domain"
	"shelfshare/pkg/store"
)

// RequestView is a request enriched with read-only projections for display:
// the book's title/author and the counterpart user. The projections never
// feed back into the state machine.
type RequestView struct {
	domain.BookRequest
	Book      *BookSummary `json:"book,omitempty"`
	Requester *UserSummary `json:"requester,omitempty"`
	Owner     *UserSummary `json:"owner,omitempty"`
}

// BookSummary is the display projection of the target book.
type BookSummary struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Author   string            `json:"author"`
	CoverURL string            `json:"coverUrl,omitempty"`
	Status   domain.BookStatus `json:"status"`
}

// CreateRequest opens a pending request from the acting user on a book.
// Self-requests and duplicate pending requests are refused; a cancelled or
// rejected earlier request does not block a new one.
func (a *App) CreateRequest(actor domain.User, bookID, requestType string) (domain.BookRequest, error) {
	reqType, ok := parseRequestType(requestType)
	if !ok {
		return domain.BookRequest{}, ErrInvalidRequestTyp
	}
	book, found, err := a.store.GetBook(strings.TrimSpace(bookID))
	if err != nil {
		return domain.BookRequest{}, fmt.Errorf("get book: %w", err)
	}
	if !found {
		return domain.BookRequest{}, ErrBookNotFound
	}
	if book.OwnerID == actor.ID {
		return domain.BookRequest{}, ErrOwnBookRequest
	}
	duplicate, err := a.store.HasPendingRequest(book.ID, actor.ID)
	if err != nil {
		return domain.BookRequest{}, fmt.Errorf("check pending: %w", err)
	}
	if duplicate {
		return domain.BookRequest{}, ErrDuplicateRequest
	}
	now := time.Now().UTC()
	request := domain.BookRequest{
		ID:          util.NewID(),
		BookID:      book.ID,
		RequesterID: actor.ID,
		// Owner is copied from the book so later authorization checks need
		// no join; owners never change after creation.
		OwnerID:   book.OwnerID,
		Type:      reqType,
		Status:    domain.RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveRequest(request); err != nil {
		return domain.BookRequest{}, fmt.Errorf("save request: %w", err)
	}
	a.publish(events.Event{
		Type:        events.RequestCreated,
		BookID:      book.ID,
		RequestID:   request.ID,
		ActorID:     actor.ID,
		RecipientID: book.OwnerID,
	})
	return request, nil
}

// AcceptRequest approves a pending request. The store applies the whole
// fan-out atomically: this request becomes accepted, every other pending
// request on the book becomes rejected, and the book is reassigned to the
// requester. When two owners' accepts race on the same book, exactly one
// wins; the other sees the request as no longer pending.
func (a *App) AcceptRequest(actor domain.User, requestID string) (domain.BookRequest, error) {
	request, err := a.authorizeReview(actor, requestID)
	if err != nil {
		return domain.BookRequest{}, err
	}
	accepted, _, err := a.store.AcceptRequest(request.ID)
	if err != nil {
		return domain.BookRequest{}, mapTransitionErr(err)
	}
	a.publish(events.Event{
		Type:        events.RequestAccepted,
		BookID:      accepted.BookID,
		RequestID:   accepted.ID,
		ActorID:     actor.ID,
		RecipientID: accepted.RequesterID,
	})
	return accepted, nil
}

// RejectRequest declines a pending request. The book is untouched.
func (a *App) RejectRequest(actor domain.User, requestID string) (domain.BookRequest, error) {
	request, err := a.authorizeReview(actor, requestID)
	if err != nil {
		return domain.BookRequest{}, err
	}
	rejected, err := a.store.UpdateRequestStatus(request.ID, domain.RequestPending, domain.RequestRejected)
	if err != nil {
		return domain.BookRequest{}, mapTransitionErr(err)
	}
	a.publish(events.Event{
		Type:        events.RequestRejected,
		BookID:      rejected.BookID,
		RequestID:   rejected.ID,
		ActorID:     actor.ID,
		RecipientID: rejected.RequesterID,
	})
	return rejected, nil
}

// CancelRequest withdraws a pending request. Only the requester may cancel.
func (a *App) CancelRequest(actor domain.User, requestID string) (domain.BookRequest, error) {
	request, found, err := a.store.GetRequest(strings.TrimSpace(requestID))
	if err != nil {
		return domain.BookRequest{}, fmt.Errorf("get request: %w", err)
	}
	if !found {
		return domain.BookRequest{}, ErrRequestNotFound
	}
	if request.RequesterID != actor.ID {
		return domain.BookRequest{}, ErrNotRequester
	}
	if request.Status != domain.RequestPending {
		return domain.BookRequest{}, ErrRequestNotPending
	}
	cancelled, err := a.store.UpdateRequestStatus(request.ID, domain.RequestPending, domain.RequestCancelled)
	if err != nil {
		return domain.BookRequest{}, mapTransitionErr(err)
	}
	a.publish(events.Event{
		Type:        events.RequestCancelled,
		BookID:      cancelled.BookID,
		RequestID:   cancelled.ID,
		ActorID:     actor.ID,
		RecipientID: cancelled.OwnerID,
	})
	return cancelled, nil
}

// GetRequest returns one request with projections. Only the requester or
// the owner may view it.
func (a *App) GetRequest(actor domain.User, requestID string) (RequestView, error) {
	request, found, err := a.store.GetRequest(strings.TrimSpace(requestID))
	if err != nil {
		return RequestView{}, fmt.Errorf("get request: %w", err)
	}
	if !found {
		return RequestView{}, ErrRequestNotFound
	}
	if request.RequesterID != actor.ID && request.OwnerID != actor.ID {
		return RequestView{}, ErrNotParticipant
	}
	views := a.requestViews([]domain.BookRequest{request})
	return views[0], nil
}

// ListSentRequests returns the acting user's outgoing requests, newest first.
func (a *App) ListSentRequests(actor domain.User) ([]RequestView, error) {
	requests, err := a.store.ListRequestsByRequester(actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list sent requests: %w", err)
	}
	return a.requestViews(requests), nil
}

// ListReceivedRequests returns requests on the acting user's books, newest
// first.
func (a *App) ListReceivedRequests(actor domain.User) ([]RequestView, error) {
	requests, err := a.store.ListRequestsByOwner(actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list received requests: %w", err)
	}
	return a.requestViews(requests), nil
}

// authorizeReview loads a request and checks the actor owns the book. The
// pending check here is advisory; the store re-checks inside its own
// transition so races still resolve to a single winner.
func (a *App) authorizeReview(actor domain.User, requestID string) (domain.BookRequest, error) {
	request, found, err := a.store.GetRequest(strings.TrimSpace(requestID))
	if err != nil {
		return domain.BookRequest{}, fmt.Errorf("get request: %w", err)
	}
	if !found {
		return domain.BookRequest{}, ErrRequestNotFound
	}
	if request.OwnerID != actor.ID {
		return domain.BookRequest{}, ErrNotRequestOwner
	}
	if request.Status != domain.RequestPending {
		return domain.BookRequest{}, ErrRequestNotPending
	}
	return request, nil
}

func (a *App) requestViews(requests []domain.BookRequest) []RequestView {
	views := make([]RequestView, 0, len(requests))
	userCache := make(map[string]*UserSummary)
	bookCache := make(map[string]*BookSummary)
	for _, request := range requests {
		view := RequestView{BookRequest: request}
		view.Book = a.bookSummary(bookCache, request.BookID)
		view.Requester = a.userSummary(userCache, request.RequesterID)
		view.Owner = a.userSummary(userCache, request.OwnerID)
		views = append(views, view)
	}
	return views
}

func (a *App) bookSummary(cache map[string]*BookSummary, bookID string) *BookSummary {
	if cached, ok := cache[bookID]; ok {
		return cached
	}
	book, ok, err := a.store.GetBook(bookID)
	if err != nil || !ok {
		cache[bookID] = nil
		return nil
	}
	summary := &BookSummary{
		ID:       book.ID,
		Title:    book.Title,
		Author:   book.Author,
		CoverURL: book.CoverURL,
		Status:   book.Status,
	}
	cache[bookID] = summary
	return summary
}

func mapTransitionErr(err error) error {
	switch err {
	case store.ErrRequestNotFound:
		return ErrRequestNotFound
	case store.ErrRequestNotPending:
		return ErrRequestNotPending
	case store.ErrBookNotFound:
		return ErrBookNotFound
	}
	return err
}

func parseRequestType(value string) (domain.RequestType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(domain.RequestRent):
		return domain.RequestRent, true
	case string(domain.RequestExchange):
		return domain.RequestExchange, true
	default:
		return "", false
	}
}
