package magazines

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/adyeetya/blogs-backend/pkg/db"
	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/enums"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/migrate"
	"github.com/adyeetya/blogs-backend/pkg/pagination"
	"github.com/adyeetya/blogs-backend/pkg/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	conn, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.AutoMigrate(context.Background(), db.NewFromGorm(conn)); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewRepository(conn)
}

func newTestMagazine(slug string, createdAt time.Time) *models.Magazine {
	return &models.Magazine{
		Title:         "Issue " + slug,
		Slug:          slug,
		DateOfPublish: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		StoragePrefix: storage.PrefixForSlug(slug),
		Status:        enums.MagazineStatusDraft,
		CreatedAt:     createdAt,
	}
}

func testPages(n int) models.Pages {
	pages := make(models.Pages, n)
	for i := range pages {
		key := storage.PageKey("magazines/issue-1", i, "webp")
		pages[i] = models.Page{Index: i, Key: key, URL: "https://cdn.test/" + key, Width: 1600, Height: 2133, SizeBytes: 100, Format: enums.PageFormatWebP}
	}
	return pages
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mag := newTestMagazine("issue-1", time.Now().UTC())
	mag.Keywords = models.Keywords{"travel", "food"}
	require.NoError(t, repo.Create(ctx, mag))
	assert.NotEqual(t, uuid.Nil, mag.ID)

	got, err := repo.FindBySlug(ctx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, mag.ID, got.ID)
	assert.Equal(t, enums.MagazineStatusDraft, got.Status)
	assert.Equal(t, models.Keywords{"travel", "food"}, got.Keywords)
	assert.Empty(t, got.Pages)
	assert.Nil(t, got.SourceDocument)

	byID, err := repo.FindByID(ctx, mag.ID)
	require.NoError(t, err)
	assert.Equal(t, "issue-1", byID.Slug)
}

func TestRepositoryCreateDuplicateSlug(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestMagazine("issue-1", time.Now().UTC())))

	err := repo.Create(ctx, newTestMagazine("issue-1", time.Now().UTC()))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRepositoryFindMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.FindBySlug(context.Background(), "nope")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		require.NoError(t, repo.Create(ctx, newTestMagazine(fmt.Sprintf("issue-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	rows, total, err := repo.List(ctx, pagination.Params{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 12, total)
	require.Len(t, rows, 5)
	assert.Equal(t, "issue-7", rows[0].Slug)
	assert.Equal(t, "issue-3", rows[4].Slug)

	latest, err := repo.Latest(ctx, LatestCount)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"issue-12", "issue-11", "issue-10"}, []string{latest[0].Slug, latest[1].Slug, latest[2].Slug})
}

func TestRepositoryLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mag := newTestMagazine("issue-1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, mag))

	err := repo.SaveSourceDocument(ctx, mag.ID, models.SourceDocument{Key: "k", URL: "u"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "source document only while processing")

	started := time.Now().UTC()
	require.NoError(t, repo.MarkProcessing(ctx, mag.ID, started))

	err = repo.MarkReady(ctx, mag.ID, testPages(2), "cover")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "ready without source document must be refused")

	src := models.SourceDocument{Key: storage.SourceKey("magazines/issue-1"), URL: "https://cdn.test/magazines/issue-1/source.pdf", SizeBytes: 42}
	require.NoError(t, repo.SaveSourceDocument(ctx, mag.ID, src))

	pages := testPages(3)
	require.NoError(t, repo.MarkReady(ctx, mag.ID, pages, pages[0].URL))

	got, err := repo.FindBySlug(ctx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, enums.MagazineStatusReady, got.Status)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, pages, got.Pages)
	require.NotNil(t, got.CoverImageURL)
	assert.Equal(t, pages[0].URL, *got.CoverImageURL)
	require.NotNil(t, got.SourceDocument)
	assert.Equal(t, src, *got.SourceDocument)

	require.NoError(t, repo.MarkProcessing(ctx, mag.ID, time.Now().UTC()))
	require.NoError(t, repo.MarkFailed(ctx, mag.ID, "transcode: boom"))

	failed, err := repo.FindBySlug(ctx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, enums.MagazineStatusFailed, failed.Status)
	assert.Equal(t, pages, failed.Pages, "failed run keeps previous pages")
	assert.Equal(t, 3, failed.PageCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "transcode: boom", *failed.LastError)

	err = repo.MarkFailed(ctx, mag.ID, "again")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	require.NoError(t, repo.MarkProcessing(ctx, mag.ID, time.Now().UTC()))
	again, err := repo.FindBySlug(ctx, "issue-1")
	require.NoError(t, err)
	assert.Nil(t, again.LastError, "a new run clears the last error")
}

func TestRepositoryMarkReadyRejectsBadPages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mag := newTestMagazine("issue-1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, mag))
	require.NoError(t, repo.MarkProcessing(ctx, mag.ID, time.Now().UTC()))
	require.NoError(t, repo.SaveSourceDocument(ctx, mag.ID, models.SourceDocument{Key: "k", URL: "u"}))

	pages := testPages(3)
	pages[1].Index = 2
	assert.Error(t, repo.MarkReady(ctx, mag.ID, pages, pages[0].URL))
	assert.Error(t, repo.MarkReady(ctx, mag.ID, models.Pages{}, ""))

	got, err := repo.FindByID(ctx, mag.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MagazineStatusProcessing, got.Status)
}

func TestRepositoryMarkProcessingMissing(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.MarkProcessing(context.Background(), uuid.New(), time.Now())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryStaleProcessing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	old := newTestMagazine("old", now)
	fresh := newTestMagazine("fresh", now)
	idle := newTestMagazine("idle", now)
	for _, m := range []*models.Magazine{old, fresh, idle} {
		require.NoError(t, repo.Create(ctx, m))
	}
	require.NoError(t, repo.MarkProcessing(ctx, old.ID, now.Add(-3*time.Hour)))
	require.NoError(t, repo.MarkProcessing(ctx, fresh.ID, now.Add(-time.Minute)))

	cutoff := now.Add(-time.Hour)
	stale, err := repo.FindStaleProcessing(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].Slug)

	changed, err := repo.MarkStaleFailed(ctx, old.ID, cutoff, "stale")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkStaleFailed(ctx, fresh.ID, cutoff, "stale")
	require.NoError(t, err)
	assert.False(t, changed, "a recent run must not be reaped")

	got, err := repo.FindBySlug(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, enums.MagazineStatusFailed, got.Status)
}
