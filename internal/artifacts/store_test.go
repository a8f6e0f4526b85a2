package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"cvinsight/internal/analysis"
	"cvinsight/internal/storage"
)

func slotRows(t *testing.T, env *testEnv, slot analysis.Slot) int {
	t.Helper()
	rows, err := env.index.FindSlot(context.Background(), slot)
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	return len(rows)
}

func slotObjects(t *testing.T, env *testEnv, slot analysis.Slot) []storage.ObjectMeta {
	t.Helper()
	objects, err := env.objects.ListObjects(context.Background(), SlotPrefix(testNamespace, slot), 0)
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	return objects
}

func TestSaveKeepsOneArtifactPerSlot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	slot := analysis.Slot{UserID: 7, Kind: analysis.KindGeneralHealthCheck, Provider: analysis.ProviderA}

	firstKey, err := env.store.Save(ctx, 7, sampleArtifact(slot.Kind, slot.Provider, 80))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if !strings.HasPrefix(firstKey, testNamespace+"/user_7/general_health_check_A_") || !strings.HasSuffix(firstKey, ".json") {
		t.Fatalf("unexpected key %q", firstKey)
	}

	secondKey, err := env.store.Save(ctx, 7, sampleArtifact(slot.Kind, slot.Provider, 90))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if secondKey == firstKey {
		t.Fatalf("expected a new key")
	}

	if n := slotRows(t, env, slot); n != 1 {
		t.Fatalf("expected exactly one row, got %d", n)
	}
	objects := slotObjects(t, env, slot)
	if len(objects) != 1 || objects[0].Key != secondKey {
		t.Fatalf("expected only %s, got %+v", secondKey, objects)
	}
	if _, err := env.objects.GetObject(ctx, firstKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("previous object must be deleted, got %v", err)
	}

	got, err := env.store.GetLatestForSlot(ctx, slot)
	if err != nil || got == nil {
		t.Fatalf("GetLatestForSlot: %v %v", got, err)
	}
	if got.Score != 90 {
		t.Fatalf("expected score 90, got %d", got.Score)
	}
}

func TestSaveWritesEnvelopeAndMetadata(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a := sampleArtifact(analysis.KindToneStyleEvaluation, analysis.ProviderC, 64)
	a.DetailedFeedback = "Résumé is <concise> & clear"
	key, err := env.store.Save(ctx, 2, a)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	body, err := env.objects.GetObject(ctx, key)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	text := string(body)
	if !strings.Contains(text, "Résumé is <concise> & clear") {
		t.Fatalf("non-ASCII and HTML characters must be preserved: %s", text)
	}
	if !strings.Contains(text, "\n  \"analysis\": {") {
		t.Fatalf("body must be indented: %s", text)
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, field := range []string{"user_id", "analysis_type", "ai_provider", "timestamp", "analysis"} {
		if _, ok := envelope[field]; !ok {
			t.Fatalf("envelope lacks %s", field)
		}
	}

	meta, ok := env.objects.Metadata(key)
	if !ok {
		t.Fatalf("object metadata missing")
	}
	want := map[string]string{"user_id": "2", "analysis_type": "tone_style_evaluation", "ai_provider": "C"}
	if !reflect.DeepEqual(meta, want) {
		t.Fatalf("unexpected metadata %v", meta)
	}
	if a.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt must be set on save")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a := sampleArtifact(analysis.KindComprehensiveScore, analysis.ProviderB, 73)
	a.Extra = map[string]any{
		"category_scores": map[string]any{"content": json.Number("70"), "structure": json.Number("81.5")},
		"notes":           []any{"one", "two"},
	}
	if _, err := env.store.Save(ctx, 1, a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := env.store.GetLatestForSlot(ctx, a.SlotOf(1))
	if err != nil || got == nil {
		t.Fatalf("GetLatestForSlot: %v %v", got, err)
	}
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, a.CreatedAt)
	}
	got.CreatedAt, a.CreatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(got, a) {
		t.Fatalf("round trip mismatch:\n got  %#v\n want %#v", got, a)
	}
}

func TestSaveRejectsUnknownIdentity(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Save(context.Background(), 1, sampleArtifact("cover_letter", analysis.ProviderA, 10))
	if !errors.Is(err, analysis.ErrUnknownAnalysisKind) {
		t.Fatalf("expected UnknownAnalysisKind, got %v", err)
	}
	_, err = env.store.Save(context.Background(), 1, sampleArtifact(analysis.KindComprehensiveScore, "D", 10))
	if !errors.Is(err, analysis.ErrUnknownProvider) {
		t.Fatalf("expected UnknownProvider, got %v", err)
	}
}

func TestSaveCompensatesWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	failInsert := errors.New("insert refused")
	err := env.db.Callback().Create().Before("gorm:create").Register("test:fail_insert", func(tx *gorm.DB) {
		_ = tx.AddError(failInsert)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	a := sampleArtifact(analysis.KindGeneralHealthCheck, analysis.ProviderA, 50)
	_, err = env.store.Save(ctx, 1, a)
	if !errors.Is(err, analysis.ErrStoreWriteFailed) || !errors.Is(err, failInsert) {
		t.Fatalf("expected StoreWriteFailed wrapping the insert error, got %v", err)
	}
	if env.objects.Len() != 0 {
		t.Fatalf("compensating delete must remove the written object, %d left", env.objects.Len())
	}
	if n := slotRows(t, env, a.SlotOf(1)); n != 0 {
		t.Fatalf("no row may be written, got %d", n)
	}
}

func TestSaveFailsWhenPutFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	slot := analysis.Slot{UserID: 1, Kind: analysis.KindATSCompatibilityVerification, Provider: analysis.ProviderB}

	if _, err := env.store.Save(ctx, 1, sampleArtifact(slot.Kind, slot.Provider, 60)); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	env.objects.PutErr = func(string) error { return errors.New("bucket unavailable") }
	_, err := env.store.Save(ctx, 1, sampleArtifact(slot.Kind, slot.Provider, 61))
	if !errors.Is(err, analysis.ErrStoreWriteFailed) {
		t.Fatalf("expected StoreWriteFailed, got %v", err)
	}
	// 先前的占用者已被清除，槽位为空但没有悬空的索引行。
	if n := slotRows(t, env, slot); n != 0 {
		t.Fatalf("expected empty slot, got %d rows", n)
	}
	got, err := env.store.GetLatestForSlot(ctx, slot)
	if err != nil || got != nil {
		t.Fatalf("expected empty slot, got %v %v", got, err)
	}
}

func TestGetLatestForSlotWithMissingObject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := sampleArtifact(analysis.KindVisualDesignAssessment, analysis.ProviderA, 40)
	key, err := env.store.Save(ctx, 1, a)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := env.objects.DeleteObject(ctx, key); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	got, err := env.store.GetLatestForSlot(ctx, a.SlotOf(1))
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got %v %v", got, err)
	}

	empty, err := env.store.GetLatestForSlot(ctx, analysis.Slot{UserID: 2, Kind: analysis.KindVisualDesignAssessment, Provider: analysis.ProviderA})
	if err != nil || empty != nil {
		t.Fatalf("expected (nil, nil) for empty slot, got %v %v", empty, err)
	}
}

func TestGetLatestForSlotReadFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := sampleArtifact(analysis.KindBenchmarkingComparison, analysis.ProviderC, 40)
	if _, err := env.store.Save(ctx, 1, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	env.objects.GetErr = func(string) error { return errors.New("connection reset") }

	_, err := env.store.GetLatestForSlot(ctx, a.SlotOf(1))
	if !errors.Is(err, analysis.ErrStoreReadFailed) {
		t.Fatalf("expected StoreReadFailed, got %v", err)
	}
}

func TestListByUserGroupsByKindAndProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	saves := []struct {
		user     uint
		kind     analysis.Kind
		provider analysis.Provider
		score    int
	}{
		{7, analysis.KindGeneralHealthCheck, analysis.ProviderA, 90},
		{7, analysis.KindGeneralHealthCheck, analysis.ProviderB, 70},
		{7, analysis.KindContentQualityAnalysis, analysis.ProviderC, 55},
		{2, analysis.KindGeneralHealthCheck, analysis.ProviderA, 10},
	}
	for _, s := range saves {
		if _, err := env.store.Save(ctx, s.user, sampleArtifact(s.kind, s.provider, s.score)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	listing, err := env.store.ListByUser(ctx, 7)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(listing) != 2 {
		t.Fatalf("expected two kinds, got %v", listing)
	}
	health := listing[analysis.KindGeneralHealthCheck]
	if len(health) != 2 || health[analysis.ProviderA].Score != 90 || health[analysis.ProviderB].Score != 70 {
		t.Fatalf("unexpected general_health_check entries %+v", health)
	}
	if health[analysis.ProviderA].ObjectKey == "" || health[analysis.ProviderA].CreatedAt.IsZero() {
		t.Fatalf("metadata must include object key and created_at: %+v", health[analysis.ProviderA])
	}

	empty, err := env.store.ListByUser(ctx, 1)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty listing, got %v %v", empty, err)
	}
}

func TestDeleteSlotIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := sampleArtifact(analysis.KindIndustryRoleFeedback, analysis.ProviderB, 66)
	if _, err := env.store.Save(ctx, 1, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	slot := a.SlotOf(1)

	for i := 0; i < 2; i++ {
		if err := env.store.DeleteSlot(ctx, slot); err != nil {
			t.Fatalf("DeleteSlot #%d: %v", i+1, err)
		}
		if n := slotRows(t, env, slot); n != 0 {
			t.Fatalf("expected no rows after delete #%d, got %d", i+1, n)
		}
		if env.objects.Len() != 0 {
			t.Fatalf("expected no objects after delete #%d", i+1)
		}
	}
}

func TestDeleteUserRemovesEverythingOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	for _, p := range analysis.Providers() {
		if _, err := env.store.Save(ctx, 7, sampleArtifact(analysis.KindGeneralHealthCheck, p, 50)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if _, err := env.store.Save(ctx, 2, sampleArtifact(analysis.KindGeneralHealthCheck, analysis.ProviderA, 50)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := env.store.DeleteUser(ctx, 7)
	if err != nil || removed != 3 {
		t.Fatalf("DeleteUser: removed=%d err=%v", removed, err)
	}
	removed, err = env.store.DeleteUser(ctx, 7)
	if err != nil || removed != 0 {
		t.Fatalf("second DeleteUser: removed=%d err=%v", removed, err)
	}

	listing, err := env.store.ListByUser(ctx, 7)
	if err != nil || len(listing) != 0 {
		t.Fatalf("expected empty listing, got %v %v", listing, err)
	}
	left, _ := env.objects.ListObjects(ctx, UserPrefix(testNamespace, 7), 0)
	if len(left) != 0 {
		t.Fatalf("objects remain under user_7: %+v", left)
	}
	if env.objects.Len() != 1 {
		t.Fatalf("other users must be untouched, %d objects left", env.objects.Len())
	}
}

func TestDeleteUserKeepsRowWhenObjectDeleteFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := sampleArtifact(analysis.KindAIImprovementSuggestions, analysis.ProviderA, 30)
	key, err := env.store.Save(ctx, 1, a)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	env.objects.DeleteErr = func(string) error { return errors.New("access denied") }
	if _, err := env.store.DeleteUser(ctx, 1); !errors.Is(err, analysis.ErrStoreWriteFailed) {
		t.Fatalf("expected StoreWriteFailed, got %v", err)
	}
	rows, err := env.index.FindSlot(ctx, a.SlotOf(1))
	if err != nil || len(rows) != 1 || rows[0].ObjectKey != key {
		t.Fatalf("row must survive a failed object delete: %+v %v", rows, err)
	}
}

func TestPurgeUserCollectsOrphans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if _, err := env.store.Save(ctx, 7, sampleArtifact(analysis.KindGeneralHealthCheck, analysis.ProviderA, 50)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	orphan := ObjectKey(testNamespace, analysis.Slot{UserID: 7, Kind: analysis.KindGeneralHealthCheck, Provider: analysis.ProviderB}, time.Now())
	if err := env.objects.PutObject(ctx, orphan, []byte("{}"), contentTypeJSON, nil); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	removed, err := env.store.PurgeUser(ctx, 7)
	if err != nil || removed != 1 {
		t.Fatalf("PurgeUser: removed=%d err=%v", removed, err)
	}
	if env.objects.Len() != 0 {
		t.Fatalf("expected no objects left, got %d", env.objects.Len())
	}
}

func TestConcurrentSavesLeaveOneRow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	slot := analysis.Slot{UserID: 7, Kind: analysis.KindJobTailoringOptimization, Provider: analysis.ProviderC}

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		score := 50 + i
		g.Go(func() error {
			_, err := env.store.Save(ctx, 7, sampleArtifact(slot.Kind, slot.Provider, score))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent save: %v", err)
	}

	rows, err := env.index.FindSlot(ctx, slot)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one row, got %d (%v)", len(rows), err)
	}
	objects := slotObjects(t, env, slot)
	if len(objects) != 1 || objects[0].Key != rows[0].ObjectKey {
		t.Fatalf("row must point at the only live object: row=%s objects=%+v", rows[0].ObjectKey, objects)
	}
	got, err := env.store.GetLatestForSlot(ctx, slot)
	if err != nil || got == nil || got.Score != rows[0].Score {
		t.Fatalf("index score must match artifact: %v %v", got, err)
	}
}
