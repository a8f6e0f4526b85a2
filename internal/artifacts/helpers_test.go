package artifacts

import (
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"cvinsight/internal/analysis"
	"cvinsight/internal/database/dbtest"
	"cvinsight/internal/storage"
)

const testNamespace = "analyses"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtest.Open(t, 1, 2, 7)
}

// stepClock 每次调用前进一秒，保证对象键互不相同。
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testEnv struct {
	db      *gorm.DB
	objects *storage.MemoryStore
	index   *Index
	store   *Store
	clock   *stepClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	objects := storage.NewMemoryStore()
	clock := newStepClock()
	index := NewIndex(db)
	store := NewStore(objects, index, NewLocalLocker(), nil, Options{
		Namespace: "/" + testNamespace + "/",
		OpTimeout: 5 * time.Second,
		Now:       clock.Now,
	})
	return &testEnv{db: db, objects: objects, index: index, store: store, clock: clock}
}

func sampleArtifact(kind analysis.Kind, provider analysis.Provider, score int) *analysis.Artifact {
	return &analysis.Artifact{
		Score:            score,
		Strengths:        []string{"clear"},
		Weaknesses:       []string{},
		Recommendations:  []string{"quantify impact"},
		Keywords:         []string{"go", "kubernetes"},
		AnalysisType:     kind,
		AIProvider:       provider,
		DetailedFeedback: "ok",
	}
}
