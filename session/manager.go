// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
)

const (
	// DefaultCookieName is the default name of the session cookie.
	DefaultCookieName = "cap_session"

	// DefaultTTL is the default lifetime of a session.
	DefaultTTL = 24 * time.Hour
)

// Manager binds session records in a Store to browsers with a cookie which
// holds only the record's ID.
type Manager struct {
	store      Store
	ttl        time.Duration
	cookieName string
	secure     bool
	logger     hclog.Logger
	now        func() time.Time
}

// managerOptions is the set of available options for Manager functions
type managerOptions struct {
	withTTL             time.Duration
	withCookieName      string
	withInsecureCookies bool
	withLogger          hclog.Logger
	withNowFunc         func() time.Time
}

func managerDefaults() managerOptions {
	return managerOptions{
		withTTL:        DefaultTTL,
		withCookieName: DefaultCookieName,
		withLogger:     hclog.NewNullLogger(),
		withNowFunc:    time.Now,
	}
}

func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewManager creates a new Manager for the store.
//
// Supported options: WithTTL, WithCookieName, WithInsecureCookies,
// WithLogger, WithNow
func NewManager(store Store, opt ...Option) (*Manager, error) {
	const op = "NewManager"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	opts := getManagerOpts(opt...)
	return &Manager{
		store:      store,
		ttl:        opts.withTTL,
		cookieName: opts.withCookieName,
		secure:     !opts.withInsecureCookies,
		logger:     opts.withLogger,
		now:        opts.withNowFunc,
	}, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.cookieName }

// Load returns the request's session record.  A new, unsaved record is
// returned when the request has no session cookie or its session doesn't
// exist anymore.
func (m *Manager) Load(req *http.Request) (*Record, error) {
	const op = "Manager.Load"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	c, err := req.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return m.newRecord()
	}
	r, err := m.store.Load(req.Context(), c.Value)
	switch {
	case errors.Is(err, ErrNotFound):
		m.logger.Debug("session not found, starting a new one")
		return m.newRecord()
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// Save stores the record and sets the session cookie.  The session's
// lifetime is renewed with every save.
func (m *Manager) Save(w http.ResponseWriter, req *http.Request, r *Record) error {
	const op = "Manager.Save"
	if r == nil {
		return fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	}
	now := m.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := m.store.Save(req.Context(), r, m.ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	http.SetCookie(w, m.cookie(r.ID, int(m.ttl/time.Second)))
	return nil
}

// Renew moves the record to a new ID, destroying the record stored under the
// old ID.  It's used when the privilege of a session changes, like signing
// in, so an ID known before the change is useless afterwards.
func (m *Manager) Renew(w http.ResponseWriter, req *http.Request, r *Record) error {
	const op = "Manager.Renew"
	if r == nil {
		return fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	}
	oldID := r.ID
	id, err := newSessionID()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.ID = id
	if err := m.Save(w, req, r); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if oldID != "" {
		if err := m.store.Destroy(req.Context(), oldID); err != nil {
			m.logger.Warn("unable to destroy renewed session", "error", err)
		}
	}
	return nil
}

// Destroy removes the request's session and expires its cookie.
func (m *Manager) Destroy(w http.ResponseWriter, req *http.Request) error {
	const op = "Manager.Destroy"
	c, err := req.Cookie(m.cookieName)
	if err == nil && c.Value != "" {
		if err := m.store.Destroy(req.Context(), c.Value); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	http.SetCookie(w, m.cookie("", -1))
	return nil
}

// cookie returns the session cookie.  The provider's form_post response is a
// cross site POST, so a secure cookie must be SameSite=None to be sent with
// it.  Browsers reject SameSite=None without Secure, and Lax is never sent
// with a cross site POST, so insecure cookies carry no SameSite attribute.
func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if !m.secure {
		sameSite = http.SameSiteDefaultMode
	}
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: sameSite,
	}
}

func (m *Manager) newRecord() (*Record, error) {
	const op = "Manager.newRecord"
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := m.now()
	return &Record{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func newSessionID() (string, error) {
	const op = "session.newSessionID"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate session id: %w", op, err)
	}
	return id, nil
}
