package service

import (
	"testing"
	"time"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// TestMediaCache_GetSet проверяет базовые операции Get/Set.
func TestMediaCache_GetSet(t *testing.T) {
	cache := NewMediaCache(100, 5*time.Minute)

	if _, ok := cache.Get(1); ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	cache.Set(&model.Media{ID: 1, OwnerUsername: "alice", Name: "clip.mp4"})
	got, ok := cache.Get(1)
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if got.OwnerUsername != "alice" || got.Name != "clip.mp4" {
		t.Errorf("Get = %+v", got)
	}
}

// TestMediaCache_ReturnsCopy — изменение полученной записи не меняет кэш.
func TestMediaCache_ReturnsCopy(t *testing.T) {
	cache := NewMediaCache(100, 5*time.Minute)
	m := &model.Media{ID: 1, Name: "clip.mp4"}
	cache.Set(m)
	m.Name = "changed.mp4"

	got, _ := cache.Get(1)
	got.Name = "mutated.mp4"

	again, _ := cache.Get(1)
	if again.Name != "clip.mp4" {
		t.Errorf("Name = %q, ожидалось clip.mp4", again.Name)
	}
}

// TestMediaCache_Delete проверяет инвалидацию.
func TestMediaCache_Delete(t *testing.T) {
	cache := NewMediaCache(100, 5*time.Minute)
	cache.Set(&model.Media{ID: 7})
	cache.Delete(7)

	if _, ok := cache.Get(7); ok {
		t.Error("ожидался cache miss после Delete")
	}
}

// TestMediaCache_TTL проверяет истечение записи.
func TestMediaCache_TTL(t *testing.T) {
	cache := NewMediaCache(100, 50*time.Millisecond)
	cache.Set(&model.Media{ID: 1})

	time.Sleep(100 * time.Millisecond)

	if _, ok := cache.Get(1); ok {
		t.Error("ожидался cache miss после истечения TTL")
	}
}

// TestMediaCache_MaxSize проверяет вытеснение при переполнении.
func TestMediaCache_MaxSize(t *testing.T) {
	cache := NewMediaCache(2, 5*time.Minute)
	cache.Set(&model.Media{ID: 1})
	cache.Set(&model.Media{ID: 2})
	cache.Set(&model.Media{ID: 3})

	if cache.Len() != 2 {
		t.Errorf("Len = %d, ожидалось 2", cache.Len())
	}
	if _, ok := cache.Get(1); ok {
		t.Error("самая старая запись должна быть вытеснена")
	}
}
