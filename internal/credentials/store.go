package credentials

import (
	"sync"

	"github.com/flowbase/workflow-engine/internal/model"
)

// Store is the credential-store contract the engine calls on, both at
// ctx-construction time and from the expression interpolator's {{name}}
// fallback.
type Store interface {
	GetDecryptedByID(id string) (string, bool)
	GetDecryptedByName(name string) (string, bool)
}

type record struct {
	id         string
	name       string
	ciphertext string
}

// InMemoryStore is a default Store implementation keeping encrypted
// secrets in process memory, keyed by both id and name.
type InMemoryStore struct {
	mu        sync.RWMutex
	encryptor *Encryptor
	byID      map[string]record
	byName    map[string]record
}

// NewInMemoryStore returns an empty store backed by encryptor.
func NewInMemoryStore(encryptor *Encryptor) *InMemoryStore {
	return &InMemoryStore{
		encryptor: encryptor,
		byID:      make(map[string]record),
		byName:    make(map[string]record),
	}
}

// Put encrypts and stores a credential's plaintext secret under id and name.
func (s *InMemoryStore) Put(id, name, plaintext string) error {
	ciphertext, err := s.encryptor.EncryptString(plaintext)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := record{id: id, name: name, ciphertext: ciphertext}
	s.byID[id] = rec
	s.byName[name] = rec
	return nil
}

func (s *InMemoryStore) GetDecryptedByID(id string) (string, bool) {
	s.mu.RLock()
	rec, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	plaintext, err := s.encryptor.DecryptString(rec.ciphertext)
	if err != nil {
		return "", false
	}
	return plaintext, true
}

func (s *InMemoryStore) GetDecryptedByName(name string) (string, bool) {
	s.mu.RLock()
	rec, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	plaintext, err := s.encryptor.DecryptString(rec.ciphertext)
	if err != nil {
		return "", false
	}
	return plaintext, true
}

// Resolve looks up a node's CredentialRef, trying id then name, and
// returns model.NewCredentialMissingError if neither resolves.
func Resolve(store Store, ref string) (string, error) {
	if ref == "" {
		return "", model.NewCredentialMissingError(ref)
	}
	if val, ok := store.GetDecryptedByID(ref); ok {
		return val, nil
	}
	if val, ok := store.GetDecryptedByName(ref); ok {
		return val, nil
	}
	return "", model.NewCredentialMissingError(ref)
}
