package transfer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/service"
	"github.com/olegiv/natours-go/internal/testutil"
)

const (
	tourID   = "5c88fa8cf4afda39709c2955"
	userID   = "5c8a1dfa2f8fb814b56fa181"
	guideID  = "5c8a22c62f8fb814b56fa18b"
	reviewID = "5c8a34ed14eb5c17645c9108"
)

func writeDataSet(t *testing.T, dir string) {
	t.Helper()
	files := map[string]any{
		model.Tours: []map[string]any{{
			"_id":          tourID,
			"name":         "The Sea Explorer",
			"duration":     7,
			"maxGroupSize": 15,
			"difficulty":   "medium",
			"price":        497,
			"summary":      "Exploring the jaw-dropping US east coast by foot and by boat",
			"imageCover":   "tour-2-cover.jpg",
			"startDates":   []string{"2021-06-19,10:00", "2021-07-20,10:00"},
			"guides":       []string{guideID},
		}, {
			"name":       "Bad",
			"difficulty": "extreme",
		}},
		model.Users: []map[string]any{{
			"_id":      userID,
			"name":     "Lourdes Browning",
			"email":    "loulou@example.com",
			"role":     "user",
			"active":   true,
			"password": "test1234",
		}, {
			"_id":      guideID,
			"name":     "Leo Gillespie",
			"email":    "leo@example.com",
			"role":     "guide",
			"password": "test1234",
		}},
		model.Reviews: []map[string]any{{
			"_id":    reviewID,
			"review": "Humongous! Unbelievable!",
			"rating": 5,
			"tour":   tourID,
			"user":   userID,
		}},
	}
	for name, docs := range files {
		data, err := json.Marshal(docs)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(name)), data, 0o600))
	}
}

func newImporter(t *testing.T) (*Importer, *model.Catalog, *auth.Hasher) {
	t.Helper()
	hasher := auth.NewHasher(testutil.TestHashCost)
	catalog, _ := testutil.MemoryCatalog(t, hasher, nil)
	ratings := service.NewRatingService(catalog.Collection(model.Reviews), catalog.Collection(model.Tours), nil)
	return NewImporter(catalog, ratings, testutil.TestLoggerSilent()), catalog, hasher
}

func TestImportDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDataSet(t, dir)
	imp, catalog, hasher := newImporter(t)

	result, err := imp.ImportDir(ctx, dir, ImportOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Batch)
	assert.Equal(t, map[string]int{model.Tours: 1, model.Users: 2, model.Reviews: 1}, result.Counts)
	assert.Equal(t, 4, result.Total())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.Tours, result.Errors[0].Collection)
	assert.Equal(t, 1, result.Errors[0].Index)

	tour, err := catalog.Collection(model.Tours).FindByID(ctx, tourID, docstore.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "the-sea-explorer", tour["slug"])
	qty, _ := tour.Float("ratingsQuantity")
	avg, _ := tour.Float("ratingsAverage")
	assert.Equal(t, 1.0, qty, "ratings are reconciled after the reviews")
	assert.Equal(t, 5.0, avg)

	user, err := catalog.Collection(model.Users).FindByID(ctx, userID, docstore.Projection{})
	require.NoError(t, err)
	digest := user.String(model.FieldPassword)
	assert.True(t, strings.HasPrefix(digest, "$2"), "password is hashed")
	assert.True(t, hasher.Verify("test1234", digest))
}

func TestImportDirDryRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDataSet(t, dir)
	imp, catalog, _ := newImporter(t)

	result, err := imp.ImportDir(ctx, dir, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Counts[model.Tours])

	n, err := catalog.Collection(model.Tours).Count(ctx, docstore.Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportDirStopOnError(t *testing.T) {
	dir := t.TempDir()
	writeDataSet(t, dir)
	imp, _, _ := newImporter(t)

	_, err := imp.ImportDir(context.Background(), dir, ImportOptions{StopOnError: true})
	assert.ErrorContains(t, err, "importing tours[1]")
}

func TestImportDirMissingFiles(t *testing.T) {
	imp, _, _ := newImporter(t)

	result, err := imp.ImportDir(context.Background(), t.TempDir(), ImportOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Total())
}

func TestImportDirMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(model.Tours)), []byte("{not json"), 0o600))
	imp, _, _ := newImporter(t)

	_, err := imp.ImportDir(context.Background(), dir, ImportOptions{})
	assert.ErrorContains(t, err, "parsing tours.json")
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDataSet(t, dir)
	imp, catalog, _ := newImporter(t)
	_, err := imp.ImportDir(ctx, dir, ImportOptions{})
	require.NoError(t, err)

	removed, err := imp.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{model.Tours: 1, model.Users: 2, model.Reviews: 1}, removed)

	for _, name := range Collections {
		n, err := catalog.Collection(name).Count(ctx, docstore.Filter{})
		require.NoError(t, err)
		assert.Zero(t, n, name)
	}
}

func TestExportDir(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeDataSet(t, src)
	imp, catalog, _ := newImporter(t)
	_, err := imp.ImportDir(ctx, src, ImportOptions{})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "export")
	manifest, err := NewExporter(catalog, testutil.TestLoggerSilent()).ExportDir(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, manifest.Version)
	assert.Equal(t, 2, manifest.Counts[model.Users])

	data, err := os.ReadFile(filepath.Join(dst, FileName(model.Users)))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"password"`)
	assert.Contains(t, string(data), "loulou@example.com")

	var users []map[string]any
	require.NoError(t, json.Unmarshal(data, &users))
	require.Len(t, users, 2)
	assert.Equal(t, true, users[0][model.FieldActive])

	_, err = os.Stat(filepath.Join(dst, ManifestFile))
	assert.NoError(t, err)

	// The export loads back into an empty store.
	again, fresh, _ := newImporter(t)
	result, err := again.ImportDir(ctx, dst, ImportOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	n, err := fresh.Collection(model.Reviews).Count(ctx, docstore.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
