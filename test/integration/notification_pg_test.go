package integration

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/repository"
	"logistics-admin-be/internal/repository/implementation"
	"logistics-admin-be/pkg/database"
	"logistics-admin-be/pkg/livequery"
	"logistics-admin-be/pkg/notifsync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, false)
	require.NoError(t, err, "Failed to connect to DB")
	require.NoError(t, db.AutoMigrate(model.Tables()...))
	return db
}

func seedInbox(t *testing.T, db *gorm.DB, userID string, n int) []model.Notification {
	t.Helper()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	var out []model.Notification
	for i := 0; i < n; i++ {
		notif := model.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			TypeCode:  "TRIP_ASSIGNED",
			Title:     "Trip assigned",
			Message:   "A trip was assigned to you",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&notif).Error)
		out = append(out, notif)
	}

	t.Cleanup(func() {
		db.Where("user_id = ?", userID).Delete(&model.Notification{})
	})
	return out
}

func TestPostgresOrderedRecipientQuery(t *testing.T) {
	db := openPostgres(t)
	userID := "it-" + uuid.NewString()
	seeded := seedInbox(t, db, userID, 4)

	repo := implementation.NewNotificationRepository(db, implementation.WithRequireIndex(true))
	got, err := repo.FindByRecipient(context.Background(), userID, true, 3)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, seeded[3].ID, got[0].ID, "newest first")
	assert.Equal(t, seeded[1].ID, got[2].ID)
}

func TestPostgresMarkReadIsScopedToRecipient(t *testing.T) {
	db := openPostgres(t)
	userID := "it-" + uuid.NewString()
	seeded := seedInbox(t, db, userID, 1)

	repo := implementation.NewNotificationRepository(db)
	ctx := context.Background()

	_, err := repo.MarkAsRead(ctx, "someone-else", seeded[0].ID)
	assert.True(t, errors.Is(err, repository.ErrNotificationNotFound))

	changed, err := repo.MarkAsRead(ctx, userID, seeded[0].ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkAsRead(ctx, userID, seeded[0].ID)
	require.NoError(t, err)
	assert.False(t, changed)
	count, err := repo.GetUnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgresLiveEngine(t *testing.T) {
	db := openPostgres(t)
	userID := "it-" + uuid.NewString()
	seeded := seedInbox(t, db, userID, 2)

	repo := implementation.NewNotificationRepository(db, implementation.WithRequireIndex(true))
	store := livequery.NewPollingStore(repo, livequery.WithInterval(50*time.Millisecond))
	defer store.Close()

	engine := notifsync.NewEngine(store, userID)
	engine.Start()
	defer engine.Close()

	require.Eventually(t, func() bool { return engine.UnreadCount() == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, engine.Degraded())
	assert.Equal(t, seeded[1].ID, engine.View().Notifications[0].ID)

	require.True(t, engine.MarkRead(context.Background(), seeded[1].ID))
	assert.Equal(t, 1, engine.UnreadCount())

	var stored model.Notification
	require.NoError(t, db.First(&stored, "id = ?", seeded[1].ID).Error)
	assert.True(t, stored.IsRead)
	assert.NotNil(t, stored.ReadAt)
}
