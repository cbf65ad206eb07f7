package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"shelfshare/pkg/domain"
)

const migrateLockID int64 = 48120482

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &BookRequestModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "email", "phone_number", "photo_url", "role", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "author", "genres", "location", "description", "cover_url", "cover_key", "status", "borrower_id", "updated_at"}),
	}).Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// DeleteBook removes the book record. Requests referencing it stay as the
// audit trail of past negotiations.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

// ListBooks returns a filtered page of books, newest first, plus the total
// count matching the filter.
func (s *GormStore) ListBooks(filter BookFilter, page, limit int) ([]domain.Book, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	query := s.db.Model(&BookModel{})
	if filter.Title != "" {
		query = query.Where("LOWER(title) LIKE ?", containsPattern(filter.Title))
	}
	if filter.Author != "" {
		query = query.Where("LOWER(author) LIKE ?", containsPattern(filter.Author))
	}
	if filter.Genre != "" {
		query = query.Where("LOWER(genres::text) LIKE ?", containsPattern(filter.Genre))
	}
	if filter.Location != "" {
		query = query.Where("LOWER(location) LIKE ?", containsPattern(filter.Location))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return booksFromModels(models), total, nil
}

// ListBooksByOwner returns books owned by a user, newest first.
func (s *GormStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return booksFromModels(models), nil
}

// ListBooksByBorrower returns books currently held by a borrower, optionally
// narrowed to one status.
func (s *GormStore) ListBooksByBorrower(borrowerID string, status domain.BookStatus) ([]domain.Book, error) {
	query := s.db.Where("borrower_id = ?", borrowerID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var models []BookModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return booksFromModels(models), nil
}

// SaveRequest stores or updates a book request.
func (s *GormStore) SaveRequest(r domain.BookRequest) error {
	model := requestToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&model).Error
}

// GetRequest retrieves a request by ID.
func (s *GormStore) GetRequest(id string) (domain.BookRequest, bool, error) {
	var model BookRequestModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.BookRequest{}, false, nil
		}
		return domain.BookRequest{}, false, err
	}
	return requestFromModel(model), true, nil
}

// ListRequestsByRequester returns requests sent by a user, newest first.
func (s *GormStore) ListRequestsByRequester(requesterID string) ([]domain.BookRequest, error) {
	return s.listRequests("requester_id = ?", requesterID)
}

// ListRequestsByOwner returns requests received by an owner, newest first.
func (s *GormStore) ListRequestsByOwner(ownerID string) ([]domain.BookRequest, error) {
	return s.listRequests("owner_id = ?", ownerID)
}

// ListPendingRequestsByBook returns the outstanding requests on a book.
func (s *GormStore) ListPendingRequestsByBook(bookID string) ([]domain.BookRequest, error) {
	return s.listRequests("book_id = ? AND status = ?", bookID, string(domain.RequestPending))
}

func (s *GormStore) listRequests(cond string, args ...any) ([]domain.BookRequest, error) {
	var models []BookRequestModel
	if err := s.db.Where(cond, args...).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.BookRequest, 0, len(models))
	for _, m := range models {
		res = append(res, requestFromModel(m))
	}
	return res, nil
}

// HasPendingRequest checks for an outstanding request from a requester on a book.
func (s *GormStore) HasPendingRequest(bookID, requesterID string) (bool, error) {
	var count int64
	if err := s.db.Model(&BookRequestModel{}).
		Where("book_id = ? AND requester_id = ? AND status = ?", bookID, requesterID, string(domain.RequestPending)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AcceptRequest performs the acceptance fan-out in one transaction. The book
// row is locked first so concurrent accepts on the same book serialize; the
// loser re-reads its request as rejected and gets ErrRequestNotPending.
// Siblings are rejected before the book is reassigned so no reader observes
// a reassigned book with pending siblings.
func (s *GormStore) AcceptRequest(id string) (domain.BookRequest, domain.Book, error) {
	var (
		reqModel  BookRequestModel
		bookModel BookModel
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&reqModel, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrRequestNotFound
			}
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&bookModel, "id = ?", reqModel.BookID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrBookNotFound
			}
			return err
		}
		// Re-read under the lock: a competing accept may have landed between
		// the first read and acquiring the book row.
		if err := tx.First(&reqModel, "id = ?", id).Error; err != nil {
			return err
		}
		if reqModel.Status != string(domain.RequestPending) {
			return ErrRequestNotPending
		}
		now := time.Now().UTC()
		if err := tx.Model(&BookRequestModel{}).
			Where("book_id = ? AND id <> ? AND status = ?", reqModel.BookID, id, string(domain.RequestPending)).
			Updates(map[string]any{
				"status":     string(domain.RequestRejected),
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("reject sibling requests: %w", err)
		}
		if err := tx.Model(&BookRequestModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":     string(domain.RequestAccepted),
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("accept request: %w", err)
		}
		bookStatus := domain.BookRented
		if reqModel.Type == string(domain.RequestExchange) {
			bookStatus = domain.BookExchanged
		}
		if err := tx.Model(&BookModel{}).
			Where("id = ?", bookModel.ID).
			Updates(map[string]any{
				"status":      string(bookStatus),
				"borrower_id": reqModel.RequesterID,
				"updated_at":  now,
			}).Error; err != nil {
			return fmt.Errorf("reassign book: %w", err)
		}
		reqModel.Status = string(domain.RequestAccepted)
		reqModel.UpdatedAt = now
		bookModel.Status = string(bookStatus)
		bookModel.BorrowerID = &reqModel.RequesterID
		bookModel.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.BookRequest{}, domain.Book{}, err
	}
	return requestFromModel(reqModel), bookFromModel(bookModel), nil
}

// UpdateRequestStatus is a compare-and-swap on the request status.
func (s *GormStore) UpdateRequestStatus(id string, from, to domain.RequestStatus) (domain.BookRequest, error) {
	res := s.db.Model(&BookRequestModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.BookRequest{}, res.Error
	}
	if res.RowsAffected == 0 {
		var model BookRequestModel
		if err := s.db.First(&model, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.BookRequest{}, ErrRequestNotFound
			}
			return domain.BookRequest{}, err
		}
		return domain.BookRequest{}, ErrRequestNotPending
	}
	var model BookRequestModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		return domain.BookRequest{}, err
	}
	return requestFromModel(model), nil
}

// ReturnBook conditionally resets a rented book to available.
func (s *GormStore) ReturnBook(bookID string) (domain.Book, error) {
	res := s.db.Model(&BookModel{}).
		Where("id = ? AND status = ?", bookID, string(domain.BookRented)).
		Updates(map[string]any{
			"status":      string(domain.BookAvailable),
			"borrower_id": nil,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Book{}, res.Error
	}
	if res.RowsAffected == 0 {
		var model BookModel
		if err := s.db.First(&model, "id = ?", bookID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.Book{}, ErrBookNotFound
			}
			return domain.Book{}, err
		}
		return domain.Book{}, ErrBookNotRented
	}
	var model BookModel
	if err := s.db.First(&model, "id = ?", bookID).Error; err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

func containsPattern(value string) string {
	return "%" + strings.ToLower(strings.TrimSpace(value)) + "%"
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		PhoneNumber:  u.PhoneNumber,
		PhotoURL:     u.PhotoURL,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		FullName:     m.FullName,
		Email:        m.Email,
		PhoneNumber:  m.PhoneNumber,
		PhotoURL:     m.PhotoURL,
		Role:         domain.UserRole(m.Role),
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	genres, _ := json.Marshal(b.Genres)
	var borrower *string
	if strings.TrimSpace(b.BorrowerID) != "" {
		value := b.BorrowerID
		borrower = &value
	}
	return BookModel{
		ID:          b.ID,
		OwnerID:     b.OwnerID,
		Title:       b.Title,
		Author:      b.Author,
		Genres:      genres,
		Location:    b.Location,
		Description: b.Description,
		CoverURL:    b.CoverURL,
		CoverKey:    b.CoverKey,
		Status:      string(b.Status),
		BorrowerID:  borrower,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	var genres []string
	if len(m.Genres) > 0 {
		_ = json.Unmarshal(m.Genres, &genres)
	}
	borrower := ""
	if m.BorrowerID != nil {
		borrower = *m.BorrowerID
	}
	return domain.Book{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Author:      m.Author,
		Genres:      genres,
		Location:    m.Location,
		Description: m.Description,
		CoverURL:    m.CoverURL,
		CoverKey:    m.CoverKey,
		Status:      domain.BookStatus(m.Status),
		BorrowerID:  borrower,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func booksFromModels(models []BookModel) []domain.Book {
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res
}

func requestToModel(r domain.BookRequest) BookRequestModel {
	return BookRequestModel{
		ID:          r.ID,
		BookID:      r.BookID,
		RequesterID: r.RequesterID,
		OwnerID:     r.OwnerID,
		Type:        string(r.Type),
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func requestFromModel(m BookRequestModel) domain.BookRequest {
	return domain.BookRequest{
		ID:          m.ID,
		BookID:      m.BookID,
		RequesterID: m.RequesterID,
		OwnerID:     m.OwnerID,
		Type:        domain.RequestType(m.Type),
		Status:      domain.RequestStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
