package artifacts

import (
	"context"
	"errors"
	"testing"
	"time"

	"cvinsight/internal/analysis"
)

func TestSweeperDeletesOldOrphansOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	base := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	env.objects.SetClock(func() time.Time { return base })

	key, err := env.store.Save(ctx, 1, sampleArtifact(analysis.KindGeneralHealthCheck, analysis.ProviderA, 70))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	oldOrphan := ObjectKey(testNamespace, analysis.Slot{UserID: 1, Kind: analysis.KindGeneralHealthCheck, Provider: analysis.ProviderB}, base)
	if err := env.objects.PutObject(ctx, oldOrphan, []byte("{}"), contentTypeJSON, nil); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	env.objects.SetClock(func() time.Time { return base.Add(90 * time.Minute) })
	youngOrphan := ObjectKey(testNamespace, analysis.Slot{UserID: 2, Kind: analysis.KindGeneralHealthCheck, Provider: analysis.ProviderB}, base)
	if err := env.objects.PutObject(ctx, youngOrphan, []byte("{}"), contentTypeJSON, nil); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := env.objects.PutObject(ctx, "elsewhere/user_1/x.json", []byte("{}"), contentTypeJSON, nil); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	if got := env.store.Namespace(); got != testNamespace {
		t.Fatalf("Namespace()=%q want %q", got, testNamespace)
	}
	sweeper := NewSweeper(env.objects, env.index, env.store.Namespace(), time.Hour, nil)
	sweeper.now = func() time.Time { return base.Add(2 * time.Hour) }

	report, err := sweeper.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := SweepReport{Scanned: 3, Referenced: 1, Young: 1, Deleted: 1}
	if report != want {
		t.Fatalf("unexpected report %+v want %+v", report, want)
	}

	if _, err := env.objects.GetObject(ctx, key); err != nil {
		t.Fatalf("referenced object must survive: %v", err)
	}
	if _, err := env.objects.GetObject(ctx, oldOrphan); err == nil {
		t.Fatalf("old orphan must be deleted")
	}
	if _, err := env.objects.GetObject(ctx, youngOrphan); err != nil {
		t.Fatalf("young orphan must survive the grace period: %v", err)
	}
}

func TestSweeperCountsFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	base := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	env.objects.SetClock(func() time.Time { return base })

	orphan := ObjectKey(testNamespace, analysis.Slot{UserID: 1, Kind: analysis.KindComprehensiveScore, Provider: analysis.ProviderC}, base)
	if err := env.objects.PutObject(ctx, orphan, []byte("{}"), contentTypeJSON, nil); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	env.objects.DeleteErr = func(string) error { return errors.New("denied") }

	sweeper := NewSweeper(env.objects, env.index, testNamespace, 0, nil)
	sweeper.now = func() time.Time { return base.Add(time.Minute) }
	report, err := sweeper.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 || report.Deleted != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}
