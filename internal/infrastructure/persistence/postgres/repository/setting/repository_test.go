package setting_repo

import (
	"context"
	"testing"
	"time"

	"signal-desk-bot/internal/infrastructure/persistence/postgres"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := postgres.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()
	repo := NewSettingRepository(store.DB)
	at := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	s, err := repo.Get(ctx, models.SettingUserbotSession)
	if err != nil || s != nil {
		t.Fatalf("Get(unset) = %v, %v", s, err)
	}
	if err := repo.Set(ctx, models.SettingUserbotSession, "c2Vzc2lvbg==", at); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := repo.Set(ctx, models.SettingUserbotSession, "bmV3", at.Add(time.Minute)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	s, err = repo.Get(ctx, models.SettingUserbotSession)
	if err != nil || s == nil || s.Value != "bmV3" || !s.UpdatedAt.Equal(at.Add(time.Minute)) {
		t.Fatalf("Get = %+v, %v", s, err)
	}
	if err := repo.Delete(ctx, models.SettingUserbotSession); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s, _ := repo.Get(ctx, models.SettingUserbotSession); s != nil {
		t.Fatalf("setting survived Delete: %+v", s)
	}
}
