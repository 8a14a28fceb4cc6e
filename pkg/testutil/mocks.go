// Package testutil provides in-memory doubles for the hosted services ConeDex
// talks to, so tests can assert on what would have been sent.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/conedex/conedex/internal/mailer"
)

// MockMailer records every message instead of sending it.
type MockMailer struct {
	mu         sync.Mutex
	messages   []mailer.Message
	recipients []mailer.Recipient
	failWith   error
}

// NewMockMailer creates an empty mailer.
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// FailWith makes subsequent sends return err. Batch sends report every
// recipient as failed instead.
func (m *MockMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Send records msg.
func (m *MockMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, msg)
	return nil
}

// SendBatch records one message per recipient.
func (m *MockMailer) SendBatch(_ context.Context, msg mailer.Message, recipients []mailer.Recipient) (mailer.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return mailer.BatchResult{Failed: len(recipients), Batches: 1, Errors: []string{m.failWith.Error()}}, nil
	}
	for _, r := range recipients {
		sent := msg
		sent.To = r.Email
		sent.ToName = r.Name
		m.messages = append(m.messages, sent)
	}
	m.recipients = append(m.recipients, recipients...)
	return mailer.BatchResult{Sent: len(recipients), Batches: 1}, nil
}

// Messages returns a copy of the recorded messages.
func (m *MockMailer) Messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailer.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MockAuthAdmin records account actions against the auth provider.
type MockAuthAdmin struct {
	mu      sync.Mutex
	banned  map[string]bool
	deleted map[string]bool
}

// NewMockAuthAdmin creates an auth admin with no accounts banned.
func NewMockAuthAdmin() *MockAuthAdmin {
	return &MockAuthAdmin{banned: make(map[string]bool), deleted: make(map[string]bool)}
}

// BanUser marks userID as banned.
func (m *MockAuthAdmin) BanUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted[userID] {
		return fmt.Errorf("user not found: %s", userID)
	}
	m.banned[userID] = true
	return nil
}

// UnbanUser lifts a ban.
func (m *MockAuthAdmin) UnbanUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted[userID] {
		return fmt.Errorf("user not found: %s", userID)
	}
	delete(m.banned, userID)
	return nil
}

// DeleteUser removes userID.
func (m *MockAuthAdmin) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[userID] = true
	delete(m.banned, userID)
	return nil
}

// Banned reports whether userID is currently banned.
func (m *MockAuthAdmin) Banned(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banned[userID]
}

// Deleted reports whether userID was deleted.
func (m *MockAuthAdmin) Deleted(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted[userID]
}

// MockObjectStore keeps uploaded objects in memory.
type MockObjectStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
	types   map[string]string
}

// NewMockObjectStore creates a store whose public URLs start with baseURL.
func NewMockObjectStore(baseURL string) *MockObjectStore {
	return &MockObjectStore{
		baseURL: baseURL,
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Upload stores body under key and returns its public URL.
func (m *MockObjectStore) Upload(_ context.Context, key, contentType string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	m.types[key] = contentType
	return m.baseURL + "/" + key, nil
}

// Object returns the stored body and content type for key.
func (m *MockObjectStore) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return body, m.types[key], ok
}

// Keys lists the stored keys in no particular order.
func (m *MockObjectStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
