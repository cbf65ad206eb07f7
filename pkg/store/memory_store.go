package store

import (
	"strings"
	"sync"
	"time"

	"shelfshare/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs;
// the single mutex gives it the same atomicity the GORM store gets from
// transactions.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	books     map[string]domain.Book
	bookOrder []string
	requests  map[string]domain.BookRequest
	reqOrder  []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		books:    make(map[string]domain.Book),
		requests: make(map[string]domain.BookRequest),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveBook stores or replaces a book record and tracks insertion order.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.bookOrder = append(m.bookOrder, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// DeleteBook removes a book.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	filtered := m.bookOrder[:0]
	for _, item := range m.bookOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.bookOrder = filtered
	return nil
}

// ListBooks returns a filtered page, newest first.
func (m *MemoryStore) ListBooks(filter BookFilter, page, limit int) ([]domain.Book, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.Book, 0, len(m.bookOrder))
	for i := len(m.bookOrder) - 1; i >= 0; i-- {
		b, ok := m.books[m.bookOrder[i]]
		if ok && bookMatches(b, filter) {
			matched = append(matched, b)
		}
	}
	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []domain.Book{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// ListBooksByOwner returns books owned by a user, newest first.
func (m *MemoryStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0)
	for i := len(m.bookOrder) - 1; i >= 0; i-- {
		if b, ok := m.books[m.bookOrder[i]]; ok && b.OwnerID == ownerID {
			res = append(res, b)
		}
	}
	return res, nil
}

// ListBooksByBorrower returns books held by a borrower, optionally by status.
func (m *MemoryStore) ListBooksByBorrower(borrowerID string, status domain.BookStatus) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0)
	for i := len(m.bookOrder) - 1; i >= 0; i-- {
		b, ok := m.books[m.bookOrder[i]]
		if !ok || b.BorrowerID != borrowerID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		res = append(res, b)
	}
	return res, nil
}

// SaveRequest stores or replaces a request and tracks insertion order.
func (m *MemoryStore) SaveRequest(r domain.BookRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[r.ID]; !exists {
		m.reqOrder = append(m.reqOrder, r.ID)
	}
	m.requests[r.ID] = r
	return nil
}

// GetRequest retrieves a request by ID.
func (m *MemoryStore) GetRequest(id string) (domain.BookRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	return r, ok, nil
}

// ListRequestsByRequester returns requests sent by a user, newest first.
func (m *MemoryStore) ListRequestsByRequester(requesterID string) ([]domain.BookRequest, error) {
	return m.listRequests(func(r domain.BookRequest) bool {
		return r.RequesterID == requesterID
	}), nil
}

// ListRequestsByOwner returns requests received by an owner, newest first.
func (m *MemoryStore) ListRequestsByOwner(ownerID string) ([]domain.BookRequest, error) {
	return m.listRequests(func(r domain.BookRequest) bool {
		return r.OwnerID == ownerID
	}), nil
}

// ListPendingRequestsByBook returns the outstanding requests on a book.
func (m *MemoryStore) ListPendingRequestsByBook(bookID string) ([]domain.BookRequest, error) {
	return m.listRequests(func(r domain.BookRequest) bool {
		return r.BookID == bookID && r.Status == domain.RequestPending
	}), nil
}

func (m *MemoryStore) listRequests(match func(domain.BookRequest) bool) []domain.BookRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.BookRequest, 0)
	for i := len(m.reqOrder) - 1; i >= 0; i-- {
		if r, ok := m.requests[m.reqOrder[i]]; ok && match(r) {
			res = append(res, r)
		}
	}
	return res
}

// HasPendingRequest checks for an outstanding request from a requester on a book.
func (m *MemoryStore) HasPendingRequest(bookID, requesterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requests {
		if r.BookID == bookID && r.RequesterID == requesterID && r.Status == domain.RequestPending {
			return true, nil
		}
	}
	return false, nil
}

// AcceptRequest applies the acceptance fan-out under the store mutex.
func (m *MemoryStore) AcceptRequest(id string) (domain.BookRequest, domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.BookRequest{}, domain.Book{}, ErrRequestNotFound
	}
	if req.Status != domain.RequestPending {
		return domain.BookRequest{}, domain.Book{}, ErrRequestNotPending
	}
	book, ok := m.books[req.BookID]
	if !ok {
		return domain.BookRequest{}, domain.Book{}, ErrBookNotFound
	}
	now := time.Now().UTC()
	for rid, sibling := range m.requests {
		if rid == id || sibling.BookID != req.BookID || sibling.Status != domain.RequestPending {
			continue
		}
		sibling.Status = domain.RequestRejected
		sibling.UpdatedAt = now
		m.requests[rid] = sibling
	}
	req.Status = domain.RequestAccepted
	req.UpdatedAt = now
	m.requests[id] = req

	book.Status = domain.BookRented
	if req.Type == domain.RequestExchange {
		book.Status = domain.BookExchanged
	}
	book.BorrowerID = req.RequesterID
	book.UpdatedAt = now
	m.books[book.ID] = book
	return req, book, nil
}

// UpdateRequestStatus is a compare-and-swap on the request status.
func (m *MemoryStore) UpdateRequestStatus(id string, from, to domain.RequestStatus) (domain.BookRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return domain.BookRequest{}, ErrRequestNotFound
	}
	if req.Status != from {
		return domain.BookRequest{}, ErrRequestNotPending
	}
	req.Status = to
	req.UpdatedAt = time.Now().UTC()
	m.requests[id] = req
	return req, nil
}

// ReturnBook conditionally resets a rented book to available.
func (m *MemoryStore) ReturnBook(bookID string) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[bookID]
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.Status != domain.BookRented {
		return domain.Book{}, ErrBookNotRented
	}
	book.Status = domain.BookAvailable
	book.BorrowerID = ""
	book.UpdatedAt = time.Now().UTC()
	m.books[bookID] = book
	return book, nil
}

func bookMatches(b domain.Book, f BookFilter) bool {
	if f.Title != "" && !containsFold(b.Title, f.Title) {
		return false
	}
	if f.Author != "" && !containsFold(b.Author, f.Author) {
		return false
	}
	if f.Genre != "" && !genreMatches(b.Genres, f.Genre) {
		return false
	}
	if f.Location != "" && !containsFold(b.Location, f.Location) {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

func genreMatches(genres []string, needle string) bool {
	for _, g := range genres {
		if containsFold(g, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}
