package app

import (
	"errors"
	"testing"
	"time"

	"shelfshare/internal/events"
	"shelfshare/pkg/domain"
	"shelfshare/pkg/store"
)

func TestCreateBookRequiresAllFields(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")

	cases := []CreateBookInput{
		{Author: "a", Genres: []string{"g"}, Location: "l", Description: "d"},
		{Title: "t", Genres: []string{"g"}, Location: "l", Description: "d"},
		{Title: "t", Author: "a", Location: "l", Description: "d"},
		{Title: "t", Author: "a", Genres: []string{"  "}, Location: "l", Description: "d"},
		{Title: "t", Author: "a", Genres: []string{"g"}, Description: "d"},
		{Title: "t", Author: "a", Genres: []string{"g"}, Location: "l"},
	}
	for i, input := range cases {
		if _, err := app.CreateBook(owner, input, nil); !errors.Is(err, ErrBookFieldsMissing) {
			t.Fatalf("case %d: expected missing fields error, got %v", i, err)
		}
	}
}

func TestCreateBookStartsAvailable(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")

	book, err := app.CreateBook(owner, CreateBookInput{
		Title:       "  Solaris ",
		Author:      "Stanislaw Lem",
		Genres:      []string{" science fiction ", ""},
		Location:    "Warsaw",
		Description: "First contact that never connects.",
	}, nil)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if book.Status != domain.BookAvailable {
		t.Fatalf("expected available, got %s", book.Status)
	}
	if book.Title != "Solaris" || book.OwnerID != owner.ID {
		t.Fatalf("unexpected book: %+v", book)
	}
	if len(book.Genres) != 1 || book.Genres[0] != "science fiction" {
		t.Fatalf("expected trimmed genres, got %+v", book.Genres)
	}
}

func TestUpdateBookOwnerOnlyAndAllowedFields(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")
	stranger := seedUser(t, mem, "stranger")
	book := seedBook(t, mem, owner)

	title := "Updated Title"
	if _, err := app.UpdateBook(stranger, book.ID, BookUpdate{Title: &title}, nil); !errors.Is(err, ErrNotBookOwner) {
		t.Fatalf("expected owner-only edit, got %v", err)
	}

	updated, err := app.UpdateBook(owner, book.ID, BookUpdate{Title: &title}, nil)
	if err != nil {
		t.Fatalf("update book: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("expected title change, got %q", updated.Title)
	}
	if updated.Status != book.Status || updated.BorrowerID != book.BorrowerID {
		t.Fatalf("edits must not touch status or borrower: %+v", updated)
	}

	if _, err := app.UpdateBook(owner, "missing", BookUpdate{Title: &title}, nil); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteBookKeepsRequestHistory(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")
	seeker := seedUser(t, mem, "seeker")
	book := seedBook(t, mem, owner)

	request, err := app.CreateRequest(seeker, book.ID, "rent")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := app.DeleteBook(seeker, book.ID); !errors.Is(err, ErrNotBookOwner) {
		t.Fatalf("expected owner-only delete, got %v", err)
	}
	if err := app.DeleteBook(owner, book.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, err := app.GetBook(book.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected book gone, got %v", err)
	}

	// The request survives as history; the book projection is simply absent.
	sent, err := app.ListSentRequests(seeker)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != request.ID {
		t.Fatalf("expected the request to survive, got %+v", sent)
	}
	if sent[0].Book != nil {
		t.Fatalf("expected no book projection after delete, got %+v", sent[0].Book)
	}
}

func TestMarkReturnedBorrowerPolicy(t *testing.T) {
	app, mem, publisher := newTestApp(t)
	owner := seedUser(t, mem, "owner")
	seeker := seedUser(t, mem, "seeker")
	book := seedBook(t, mem, owner)

	request, err := app.CreateRequest(seeker, book.ID, "rent")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := app.AcceptRequest(owner, request.ID); err != nil {
		t.Fatalf("accept request: %v", err)
	}

	// Under the default policy the owner cannot mark the return.
	if _, err := app.MarkReturned(owner, book.ID); !errors.Is(err, ErrNotReturnable) {
		t.Fatalf("expected borrower-only return, got %v", err)
	}

	returned, err := app.MarkReturned(seeker, book.ID)
	if err != nil {
		t.Fatalf("mark returned: %v", err)
	}
	if returned.Status != domain.BookAvailable || returned.BorrowerID != "" {
		t.Fatalf("expected available with no borrower, got %+v", returned)
	}
	returnedEvents := publisher.byType(events.BookReturned)
	if len(returnedEvents) != 1 || returnedEvents[0].RecipientID != owner.ID {
		t.Fatalf("expected one returned event for the owner, got %+v", returnedEvents)
	}

	// Already available.
	if _, err := app.MarkReturned(seeker, book.ID); !errors.Is(err, ErrNotReturnable) {
		t.Fatalf("expected refusal once available, got %v", err)
	}
}

func TestMarkReturnedOwnerPolicy(t *testing.T) {
	mem := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret-0123456789", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	app, err := New(Config{Store: mem, Sessions: sessions, ReturnPolicy: ReturnByOwner})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	owner := seedUser(t, mem, "owner")
	seeker := seedUser(t, mem, "seeker")
	book := seedBook(t, mem, owner)

	request, err := app.CreateRequest(seeker, book.ID, "rent")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := app.AcceptRequest(owner, request.ID); err != nil {
		t.Fatalf("accept request: %v", err)
	}

	if _, err := app.MarkReturned(seeker, book.ID); !errors.Is(err, ErrNotReturnable) {
		t.Fatalf("expected owner-only return, got %v", err)
	}
	returned, err := app.MarkReturned(owner, book.ID)
	if err != nil {
		t.Fatalf("mark returned: %v", err)
	}
	if returned.Status != domain.BookAvailable {
		t.Fatalf("expected available, got %s", returned.Status)
	}
}

func TestMarkReturnedExchangedBookRefused(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")
	seeker := seedUser(t, mem, "seeker")
	book := seedBook(t, mem, owner)

	request, err := app.CreateRequest(seeker, book.ID, "exchange")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := app.AcceptRequest(owner, request.ID); err != nil {
		t.Fatalf("accept request: %v", err)
	}
	// Exchanges are permanent transfers, not loans.
	if _, err := app.MarkReturned(seeker, book.ID); !errors.Is(err, ErrBookNotRented) {
		t.Fatalf("expected not rented refusal, got %v", err)
	}
}

func TestBorrowerShelves(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")
	seeker := seedUser(t, mem, "seeker")
	rented := seedBook(t, mem, owner)
	exchanged := seedBook(t, mem, owner)

	rentReq, err := app.CreateRequest(seeker, rented.ID, "rent")
	if err != nil {
		t.Fatalf("create rent request: %v", err)
	}
	exchangeReq, err := app.CreateRequest(seeker, exchanged.ID, "exchange")
	if err != nil {
		t.Fatalf("create exchange request: %v", err)
	}
	if _, err := app.AcceptRequest(owner, rentReq.ID); err != nil {
		t.Fatalf("accept rent: %v", err)
	}
	if _, err := app.AcceptRequest(owner, exchangeReq.ID); err != nil {
		t.Fatalf("accept exchange: %v", err)
	}

	rentedBooks, err := app.MyRentedBooks(seeker)
	if err != nil {
		t.Fatalf("my rented books: %v", err)
	}
	if len(rentedBooks) != 1 || rentedBooks[0].ID != rented.ID {
		t.Fatalf("expected the rented book, got %+v", rentedBooks)
	}
	exchangedBooks, err := app.MyExchangedBooks(seeker)
	if err != nil {
		t.Fatalf("my exchanged books: %v", err)
	}
	if len(exchangedBooks) != 1 || exchangedBooks[0].ID != exchanged.ID {
		t.Fatalf("expected the exchanged book, got %+v", exchangedBooks)
	}
	ownBooks, err := app.MyBooks(owner)
	if err != nil {
		t.Fatalf("my books: %v", err)
	}
	if len(ownBooks) != 2 {
		t.Fatalf("expected 2 owned books, got %d", len(ownBooks))
	}
}

func TestListBooksFilterAndPagination(t *testing.T) {
	app, mem, _ := newTestApp(t)
	owner := seedUser(t, mem, "owner")

	for _, tc := range []struct{ title, genre string }{
		{"Dune", "science fiction"},
		{"Dune Messiah", "science fiction"},
		{"Middlemarch", "classic"},
	} {
		if _, err := app.CreateBook(owner, CreateBookInput{
			Title:       tc.title,
			Author:      "Author",
			Genres:      []string{tc.genre},
			Location:    "Porto",
			Description: "desc",
		}, nil); err != nil {
			t.Fatalf("create %s: %v", tc.title, err)
		}
	}

	books, total, err := app.ListBooks(store.BookFilter{Title: "dune"}, 1, 10)
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if total != 2 || len(books) != 2 {
		t.Fatalf("expected 2 dune matches, got total=%d len=%d", total, len(books))
	}

	books, total, err = app.ListBooks(store.BookFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if total != 3 || len(books) != 1 {
		t.Fatalf("expected page of 1 with total 3, got total=%d len=%d", total, len(books))
	}

	books, total, err = app.ListBooks(store.BookFilter{Genre: "classic"}, 1, 10)
	if err != nil {
		t.Fatalf("list by genre: %v", err)
	}
	if total != 1 || books[0].Title != "Middlemarch" {
		t.Fatalf("expected the classic, got %+v", books)
	}

	if views, _, err := app.ListBooks(store.BookFilter{}, 1, 10); err != nil || views[0].Owner == nil {
		t.Fatalf("expected owner projection, err=%v", err)
	}
}
