package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/objectstore"
	"github.com/bigkaa/goartstore/media-gate/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// --- in-memory реестр медиа ---

type memMediaRepo struct {
	mu      sync.Mutex
	items   map[int64]*model.Media
	nextID  int64
	getErr  error
	getHits int
	perms   *memPermRepo
}

func newMemMediaRepo(perms *memPermRepo) *memMediaRepo {
	return &memMediaRepo{items: make(map[int64]*model.Media), nextID: 1, perms: perms}
}

func (r *memMediaRepo) add(owner, name string) *model.Media {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &model.Media{ID: r.nextID, OwnerUsername: owner, Name: name, CreatedAt: time.Now().UTC()}
	r.items[m.ID] = m
	r.nextID++
	return m
}

func (r *memMediaRepo) Create(_ context.Context, m *model.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.OwnerUsername == m.OwnerUsername && existing.Name == m.Name {
			return fmt.Errorf("%w: дубликат", repository.ErrConflict)
		}
	}
	m.ID = r.nextID
	m.CreatedAt = time.Now().UTC()
	r.nextID++
	cp := *m
	r.items[m.ID] = &cp
	return nil
}

func (r *memMediaRepo) GetByID(_ context.Context, id int64) (*model.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getHits++
	if r.getErr != nil {
		return nil, r.getErr
	}
	m, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMediaRepo) GetByOwnerAndName(_ context.Context, owner, name string) (*model.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.items {
		if m.OwnerUsername == owner && m.Name == name {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memMediaRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memMediaRepo) ListOwned(_ context.Context, owner string, limit, offset int) ([]*model.Media, int, error) {
	return r.list(func(m *model.Media) bool { return m.OwnerUsername == owner }, limit, offset)
}

func (r *memMediaRepo) ListPermitted(_ context.Context, username string, limit, offset int) ([]*model.Media, int, error) {
	return r.list(func(m *model.Media) bool { return r.perms.has(m.ID, username) }, limit, offset)
}

func (r *memMediaRepo) list(match func(*model.Media) bool, limit, offset int) ([]*model.Media, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*model.Media, 0)
	for _, m := range r.items {
		if match(m) {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Media{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// --- in-memory реестр разрешений ---

type permKey struct {
	mediaID  int64
	username string
}

type memPermRepo struct {
	mu     sync.Mutex
	grants map[permKey]model.PermissionKind
	getErr error
}

func newMemPermRepo() *memPermRepo {
	return &memPermRepo{grants: make(map[permKey]model.PermissionKind)}
}

func (r *memPermRepo) set(mediaID int64, username string, kind model.PermissionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[permKey{mediaID, username}] = kind
}

func (r *memPermRepo) has(mediaID int64, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.grants[permKey{mediaID, username}]
	return ok
}

func (r *memPermRepo) kindOf(mediaID int64, username string) (model.PermissionKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.grants[permKey{mediaID, username}]
	return k, ok
}

func (r *memPermRepo) GetPermission(_ context.Context, mediaID int64, username string) (*model.PermissionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	k, ok := r.grants[permKey{mediaID, username}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.PermissionGrant{MediaID: mediaID, Username: username, Kind: k}, nil
}

func (r *memPermRepo) Upsert(_ context.Context, g *model.PermissionGrant) error {
	r.set(g.MediaID, g.Username, g.Kind)
	return nil
}

func (r *memPermRepo) Delete(_ context.Context, mediaID int64, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := permKey{mediaID, username}
	if _, ok := r.grants[k]; !ok {
		return repository.ErrNotFound
	}
	delete(r.grants, k)
	return nil
}

func (r *memPermRepo) DeleteForMedia(_ context.Context, mediaID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.grants {
		if k.mediaID == mediaID {
			delete(r.grants, k)
			n++
		}
	}
	return n, nil
}

// memTx выполняет fn над теми же in-memory репозиториями.
type memTx struct {
	media *memMediaRepo
	perms *memPermRepo
	err   error
}

func (t *memTx) InRegistryTx(_ context.Context, fn func(rtx repository.RegistryTx) error) error {
	if t.err != nil {
		return t.err
	}
	return fn(repository.RegistryTx{Media: t.media, Permissions: t.perms})
}

// --- объектное хранилище ---

type memStore struct {
	objects    map[string]int64
	headErr    error
	presignErr error
	deleteErr  error
	deleted    []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]int64)}
}

func (s *memStore) HeadObject(_ context.Context, key string) (objectstore.ObjectInfo, error) {
	if s.headErr != nil {
		return objectstore.ObjectInfo{}, s.headErr
	}
	size, ok := s.objects[key]
	return objectstore.ObjectInfo{Exists: ok, SizeBytes: size}, nil
}

func (s *memStore) PresignPut(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return fmt.Sprintf("https://s3.example.com/media/%s?X-Amz-Expires=%d", key, int(ttl.Seconds())), nil
}

func (s *memStore) DeleteObject(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

// --- ключевой материал ---

type mockKeys struct {
	fn    func(ctx context.Context, privateKeyName, keyPairIDName string) (model.SigningKeyMaterial, error)
	calls int
}

func (m *mockKeys) SigningKey(ctx context.Context, privateKeyName, keyPairIDName string) (model.SigningKeyMaterial, error) {
	m.calls++
	return m.fn(ctx, privateKeyName, keyPairIDName)
}

var (
	testKeyOnce sync.Once
	testKeyPEM  string
)

// testSigningKey возвращает RSA-ключ в PEM, общий для тестов пакета.
func testSigningKey(t *testing.T) model.SigningKeyMaterial {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKeyPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}))
	})
	return model.SigningKeyMaterial{PrivateKeyPEM: testKeyPEM, PublicKeyID: "K2JCJMDEHXQW5F"}
}

func staticKeys(t *testing.T) *mockKeys {
	key := testSigningKey(t)
	return &mockKeys{fn: func(context.Context, string, string) (model.SigningKeyMaterial, error) {
		return key, nil
	}}
}
