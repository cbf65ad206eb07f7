package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"shelfshare/internal/app"
	"shelfshare/pkg/domain"
	"shelfshare/pkg/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type bookListResponse struct {
	Books []app.BookView `json:"books"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBooks(w, r)
	case http.MethodPost:
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.createBook(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

// The catalog is browsable without a session; only mutations need one.
func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.BookFilter{
		Title:    strings.TrimSpace(query.Get("title")),
		Author:   strings.TrimSpace(query.Get("author")),
		Genre:    strings.TrimSpace(query.Get("genre")),
		Location: strings.TrimSpace(query.Get("location")),
		Status:   domain.BookStatus(strings.TrimSpace(query.Get("status"))),
	}
	page := parsePositiveInt(query.Get("page"), 1)
	limit := parsePositiveInt(query.Get("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	books, total, err := s.app.ListBooks(filter, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookListResponse{Books: books, Total: total, Page: page, Limit: limit})
}

type createBookRequest struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genres      []string `json:"genres"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	input, cover, ok := s.readBookForm(w, r)
	if !ok {
		return
	}
	book, err := s.app.CreateBook(user, input, cover)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// readBookForm accepts either a JSON body or a multipart form with an
// optional cover file. A false return means the error is already written.
func (s *Server) readBookForm(w http.ResponseWriter, r *http.Request) (app.CreateBookInput, *app.CoverUpload, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return app.CreateBookInput{}, nil, false
		}
		input := app.CreateBookInput{
			Title:       r.FormValue("title"),
			Author:      r.FormValue("author"),
			Genres:      splitGenres(r.FormValue("genre"), r.Form["genres"]),
			Location:    r.FormValue("location"),
			Description: r.FormValue("description"),
		}
		var cover *app.CoverUpload
		if file, header, err := r.FormFile("cover"); err == nil {
			cover = &app.CoverUpload{Filename: header.Filename, Reader: file, Size: header.Size}
		}
		return input, cover, true
	}
	var req createBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return app.CreateBookInput{}, nil, false
	}
	return app.CreateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Genres:      req.Genres,
		Location:    req.Location,
		Description: req.Description,
	}, nil, true
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/book/"), "/")
	if rest == "" {
		notFound(w, "book not found")
		return
	}
	parts := strings.Split(rest, "/")
	bookID := parts[0]
	if len(parts) == 2 && parts[1] == "mark-returned" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		book, err := s.app.MarkReturned(user, bookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
		return
	}
	if len(parts) != 1 {
		notFound(w, "book not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.GetBook(bookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut, http.MethodPatch:
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.updateBook(w, r, user, bookID)
	case http.MethodDelete:
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := s.app.DeleteBook(user, bookID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "book deleted"})
	default:
		methodNotAllowed(w)
	}
}

type updateBookRequest struct {
	Title       *string  `json:"title"`
	Author      *string  `json:"author"`
	Genres      []string `json:"genres"`
	Location    *string  `json:"location"`
	Description *string  `json:"description"`
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request, user domain.User, bookID string) {
	contentType := r.Header.Get("Content-Type")
	var update app.BookUpdate
	var cover *app.CoverUpload
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		update = app.BookUpdate{
			Title:       optionalFormValue(r, "title"),
			Author:      optionalFormValue(r, "author"),
			Genres:      splitGenres(r.FormValue("genre"), r.Form["genres"]),
			Location:    optionalFormValue(r, "location"),
			Description: optionalFormValue(r, "description"),
		}
		if file, header, err := r.FormFile("cover"); err == nil {
			cover = &app.CoverUpload{Filename: header.Filename, Reader: file, Size: header.Size}
		}
	} else {
		var req updateBookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		update = app.BookUpdate{
			Title:       req.Title,
			Author:      req.Author,
			Genres:      req.Genres,
			Location:    req.Location,
			Description: req.Description,
		}
	}
	book, err := s.app.UpdateBook(user, bookID, update, cover)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleMyBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.MyBooks(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleMyRentedBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.MyRentedBooks(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleMyExchangedBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.MyExchangedBooks(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func optionalFormValue(r *http.Request, key string) *string {
	if _, ok := r.Form[key]; !ok {
		return nil
	}
	value := r.FormValue(key)
	return &value
}

func splitGenres(joined string, repeated []string) []string {
	if len(repeated) > 0 {
		return repeated
	}
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func parsePositiveInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
