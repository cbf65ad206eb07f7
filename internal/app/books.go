package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"shelfshare/internal/events"
	"shelfshare/internal/util"
	"shelfshare/pkg/domain"
	"shelfshare/pkg/store"
)

// CreateBookInput carries the listing form fields.
type CreateBookInput struct {
	Title       string
	Author      string
	Genres      []string
	Location    string
	Description string
}

// CoverUpload is an optional cover image attached to a listing.
type CoverUpload struct {
	Filename string
	Reader   io.Reader
	Size     int64
}

// BookView is a book enriched with read-only owner/borrower projections.
type BookView struct {
	domain.Book
	Owner    *UserSummary `json:"owner,omitempty"`
	Borrower *UserSummary `json:"borrower,omitempty"`
}

// CreateBook stores a new listing owned by the acting user.
func (a *App) CreateBook(owner domain.User, input CreateBookInput, cover *CoverUpload) (domain.Book, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	input.Location = strings.TrimSpace(input.Location)
	input.Description = strings.TrimSpace(input.Description)
	genres := cleanGenres(input.Genres)
	if input.Title == "" || input.Author == "" || len(genres) == 0 || input.Location == "" || input.Description == "" {
		return domain.Book{}, ErrBookFieldsMissing
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:          util.NewID(),
		OwnerID:     owner.ID,
		Title:       input.Title,
		Author:      input.Author,
		Genres:      genres,
		Location:    input.Location,
		Description: input.Description,
		Status:      domain.BookAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cover != nil && a.covers != nil {
		key, url, err := a.storeCover(book.ID, cover)
		if err != nil {
			return domain.Book{}, err
		}
		book.CoverKey = key
		book.CoverURL = url
	}
	if err := a.store.SaveBook(book); err != nil {
		if book.CoverKey != "" {
			_ = a.covers.Delete(context.Background(), book.CoverKey)
		}
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// ListBooks returns a filtered, paginated catalog page with owner and
// borrower projections, plus the total match count.
func (a *App) ListBooks(filter store.BookFilter, page, limit int) ([]BookView, int64, error) {
	books, total, err := a.store.ListBooks(filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return a.bookViews(books), total, nil
}

// GetBook returns one listing with its projections.
func (a *App) GetBook(id string) (BookView, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return BookView{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return BookView{}, ErrBookNotFound
	}
	views := a.bookViews([]domain.Book{book})
	return views[0], nil
}

// BookUpdate carries optional listing edits; nil fields are unchanged.
type BookUpdate struct {
	Title       *string
	Author      *string
	Genres      []string
	Location    *string
	Description *string
}

// UpdateBook applies allowed field edits. Only the owner may edit; status
// and borrower are never touched here, those belong to the request ledger.
func (a *App) UpdateBook(actor domain.User, id string, update BookUpdate, cover *CoverUpload) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.OwnerID != actor.ID {
		return domain.Book{}, ErrNotBookOwner
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) != "" {
		book.Title = strings.TrimSpace(*update.Title)
	}
	if update.Author != nil && strings.TrimSpace(*update.Author) != "" {
		book.Author = strings.TrimSpace(*update.Author)
	}
	if genres := cleanGenres(update.Genres); len(genres) > 0 {
		book.Genres = genres
	}
	if update.Location != nil && strings.TrimSpace(*update.Location) != "" {
		book.Location = strings.TrimSpace(*update.Location)
	}
	if update.Description != nil && strings.TrimSpace(*update.Description) != "" {
		book.Description = strings.TrimSpace(*update.Description)
	}
	if cover != nil && a.covers != nil {
		oldKey := book.CoverKey
		key, url, err := a.storeCover(book.ID, cover)
		if err != nil {
			return domain.Book{}, err
		}
		book.CoverKey = key
		book.CoverURL = url
		if oldKey != "" && oldKey != key {
			_ = a.covers.Delete(context.Background(), oldKey)
		}
	}
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a listing and its cover object. Only the owner may
// delete. Requests stay behind as the audit trail.
func (a *App) DeleteBook(actor domain.User, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if book.OwnerID != actor.ID {
		return ErrNotBookOwner
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if book.CoverKey != "" && a.covers != nil {
		_ = a.covers.Delete(context.Background(), book.CoverKey)
	}
	return nil
}

// MyBooks returns the acting user's own listings.
func (a *App) MyBooks(actor domain.User) ([]BookView, error) {
	books, err := a.store.ListBooksByOwner(actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list own books: %w", err)
	}
	return a.bookViews(books), nil
}

// MyRentedBooks returns books the acting user currently rents.
func (a *App) MyRentedBooks(actor domain.User) ([]BookView, error) {
	books, err := a.store.ListBooksByBorrower(actor.ID, domain.BookRented)
	if err != nil {
		return nil, fmt.Errorf("list rented books: %w", err)
	}
	return a.bookViews(books), nil
}

// MyExchangedBooks returns books the acting user holds through an exchange.
func (a *App) MyExchangedBooks(actor domain.User) ([]BookView, error) {
	books, err := a.store.ListBooksByBorrower(actor.ID, domain.BookExchanged)
	if err != nil {
		return nil, fmt.Errorf("list exchanged books: %w", err)
	}
	return a.bookViews(books), nil
}

// MarkReturned resets a rented book to available. Who is allowed to do this
// is a configured policy: the current borrower or the owner.
func (a *App) MarkReturned(actor domain.User, bookID string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	switch a.returnPolicy {
	case ReturnByOwner:
		if book.OwnerID != actor.ID {
			return domain.Book{}, ErrNotReturnable
		}
	default:
		if book.BorrowerID == "" || book.BorrowerID != actor.ID {
			return domain.Book{}, ErrNotReturnable
		}
	}
	updated, err := a.store.ReturnBook(bookID)
	if err != nil {
		switch err {
		case store.ErrBookNotFound:
			return domain.Book{}, ErrBookNotFound
		case store.ErrBookNotRented:
			return domain.Book{}, ErrBookNotRented
		}
		return domain.Book{}, fmt.Errorf("return book: %w", err)
	}
	a.publish(events.Event{
		Type:        events.BookReturned,
		BookID:      updated.ID,
		ActorID:     actor.ID,
		RecipientID: updated.OwnerID,
	})
	return updated, nil
}

func (a *App) storeCover(bookID string, cover *CoverUpload) (string, string, error) {
	key := buildCoverKey(bookID, cover.Filename)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(cover.Filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.covers.Put(ctx, key, cover.Reader, cover.Size, contentType); err != nil {
		return "", "", fmt.Errorf("store cover: %w", err)
	}
	url, err := a.covers.PresignGet(ctx, key, a.coverExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign cover: %w", err)
	}
	return key, url, nil
}

func (a *App) bookViews(books []domain.Book) []BookView {
	views := make([]BookView, 0, len(books))
	cache := make(map[string]*UserSummary)
	for _, book := range books {
		view := BookView{Book: book}
		view.Owner = a.userSummary(cache, book.OwnerID)
		if book.BorrowerID != "" {
			view.Borrower = a.userSummary(cache, book.BorrowerID)
		}
		views = append(views, view)
	}
	return views
}

func (a *App) userSummary(cache map[string]*UserSummary, userID string) *UserSummary {
	if userID == "" {
		return nil
	}
	if cached, ok := cache[userID]; ok {
		return cached
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil || !ok {
		cache[userID] = nil
		return nil
	}
	summary := summarize(user)
	cache[userID] = &summary
	return &summary
}

func (a *App) publish(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.publisher.Publish(ctx, e); err != nil {
		util.LoggerFromContext(ctx).Warn("publish event failed", "type", string(e.Type), "err", err)
	}
}

func cleanGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		out = append(out, g)
	}
	return out
}

func buildCoverKey(bookID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "cover"
	}
	return path.Join("covers", bookID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
