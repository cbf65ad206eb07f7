package app

import (
	"fmt"
	"strings"
	"time"

	"shelfshare/internal/events"
	"shelfshare/pkg/storage"
	"shelfshare/pkg/store"
)

// ReturnPolicy selects who may mark a rented book as returned. Product has
// not settled this, so it is configuration rather than code.
type ReturnPolicy string

const (
	ReturnByBorrower ReturnPolicy = "borrower"
	ReturnByOwner    ReturnPolicy = "owner"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration
	ReturnPolicy  ReturnPolicy

	// Injectable for tests; built from the settings above when nil.
	Store     store.Store
	Sessions  store.SessionStore
	Covers    storage.ObjectStore
	Publisher events.Publisher
}

// App is the core application service wiring storage, sessions, and the
// request ledger together.
type App struct {
	store        store.Store
	sessions     store.SessionStore
	covers       storage.ObjectStore
	publisher    events.Publisher
	returnPolicy ReturnPolicy
	coverExpiry  time.Duration
}

// New constructs the application with database-backed storage and JWT
// sessions.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, fmt.Errorf("jwt secret required")
		}
		var revoker store.TokenRevoker
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			revoker = store.NewMemoryTokenRevoker()
		}
		var err error
		sessionStore, err = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	policy := cfg.ReturnPolicy
	if policy == "" {
		policy = ReturnByBorrower
	}
	if policy != ReturnByBorrower && policy != ReturnByOwner {
		return nil, fmt.Errorf("invalid return policy %q", policy)
	}

	return &App{
		store:        dataStore,
		sessions:     sessionStore,
		covers:       cfg.Covers,
		publisher:    publisher,
		returnPolicy: policy,
		coverExpiry:  15 * time.Minute,
	}, nil
}

// UserSummary is the read-only projection of a counterpart user embedded in
// listings. It never feeds back into the state machine.
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl,omitempty"`
}
