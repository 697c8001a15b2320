package influx

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/influx/internal/corpus"
	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/settings"
	"github.com/starford/influx/internal/testutil"
)

type updates struct {
	mu  sync.Mutex
	got []Update
}

func (u *updates) sink(up Update) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.got = append(u.got, up)
}

func (u *updates) last(t *testing.T) Update {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.got) == 0 {
		t.Fatal("no update pushed")
	}
	return u.got[len(u.got)-1]
}

func (u *updates) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.got)
}

type liveFixture struct {
	sched  *hub.Scheduler
	store  *settings.Store
	engine *Engine
	write  func(path, content string)
	remove func(path string)
}

func newLiveFixture(t *testing.T) liveFixture {
	t.Helper()
	_, vault := testutil.TestVault(t)
	db := testutil.TestDB(t)
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	return liveFixture{
		sched:  hub.NewScheduler(hub.NewRegistry(), store, testutil.Logger()),
		store:  store,
		engine: NewEngine(corpus.New(vault, db), store, WithLogger(testutil.Logger())),
		write:  func(p, c string) { testutil.WriteNote(t, vault, db, p, c) },
		remove: func(p string) { testutil.RemoveNote(t, vault, db, p) },
	}
}

func TestConsumer_NewLinkTriggersRebuild(t *testing.T) {
	fx := newLiveFixture(t)
	fx.write("f.md", "# F")
	ctx := context.Background()

	u := &updates{}
	v, unsubscribe, err := fx.engine.Subscribe(ctx, "f.md", fx.sched.Registry(), u.sink)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()
	if len(v.Snapshot().Summaries) != 0 {
		t.Fatal("expected empty influx")
	}

	fx.write("a.md", "now links [[f]]")
	fx.sched.Notify(ctx, hub.OpContentModified, &models.Document{Path: "a.md"})

	up := u.last(t)
	if up.Op != hub.OpContentModified || len(up.View.Summaries) != 1 {
		t.Errorf("update = %+v", up)
	}
}

func TestConsumer_UnrelatedChangeIgnored(t *testing.T) {
	fx := newLiveFixture(t)
	fx.write("f.md", "# F")
	fx.write("z.md", "nothing")
	ctx := context.Background()

	u := &updates{}
	_, unsubscribe, err := fx.engine.Subscribe(ctx, "f.md", fx.sched.Registry(), u.sink)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	fx.sched.Notify(ctx, hub.OpContentModified, &models.Document{Path: "z.md"})
	if u.count() != 0 {
		t.Errorf("unrelated note pushed %d updates", u.count())
	}
}

func TestConsumer_DeletionDropsSummary(t *testing.T) {
	fx := newLiveFixture(t)
	fx.write("f.md", "# F")
	fx.write("a.md", "[[f]]")
	fx.write("b.md", "[[f]]")
	ctx := context.Background()

	u := &updates{}
	v, unsubscribe, err := fx.engine.Subscribe(ctx, "f.md", fx.sched.Registry(), u.sink)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()
	if len(v.Snapshot().Summaries) != 2 {
		t.Fatal("expected two summaries")
	}

	fx.remove("a.md")
	fx.sched.Notify(ctx, hub.OpDeleted, &models.Document{Path: "a.md"})

	if got := sourcesOf(u.last(t).View); len(got) != 1 || got[0] != "b.md" {
		t.Errorf("summaries after delete = %v", got)
	}
}

func TestConsumer_SortToggleReachesEveryView(t *testing.T) {
	fx := newLiveFixture(t)
	fx.write("f.md", "# F")
	fx.write("g.md", "# G")
	ctx := context.Background()

	uf, ug := &updates{}, &updates{}
	_, unF, err := fx.engine.Subscribe(ctx, "f.md", fx.sched.Registry(), uf.sink)
	if err != nil {
		t.Fatal(err)
	}
	defer unF()
	_, unG, err := fx.engine.Subscribe(ctx, "g.md", fx.sched.Registry(), ug.sink)
	if err != nil {
		t.Fatal(err)
	}
	defer unG()

	if _, err := fx.sched.ToggleSortOrder(ctx); err != nil {
		t.Fatal(err)
	}
	if uf.count() != 1 || ug.count() != 1 {
		t.Errorf("updates = %d, %d; want 1, 1", uf.count(), ug.count())
	}
	if uf.last(t).Op != hub.OpSettingsSaved {
		t.Errorf("op = %q", uf.last(t).Op)
	}
}

func TestConsumer_LayoutRestylesWithoutRebuild(t *testing.T) {
	fx := newLiveFixture(t)
	fx.write("f.md", "# F")
	ctx := context.Background()

	u := &updates{}
	v, unsubscribe, err := fx.engine.Subscribe(ctx, "f.md", fx.sched.Registry(), u.sink)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()
	built := v.Snapshot().BuiltAt

	fx.sched.Notify(ctx, hub.OpLayoutChanged, nil)
	up := u.last(t)
	if !up.View.BuiltAt.Equal(built) {
		t.Error("layout change should not rebuild")
	}
	if up.Style.CSS == "" {
		t.Error("layout update should carry the style context")
	}
}

func TestSubscribe_UnsubscribeDeregisters(t *testing.T) {
	fx := newLiveFixture(t)
	fx.write("f.md", "# F")

	_, unsubscribe, err := fx.engine.Subscribe(context.Background(), "f.md", fx.sched.Registry(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if fx.sched.Registry().Len() != 1 {
		t.Fatal("consumer not registered")
	}
	unsubscribe()
	if fx.sched.Registry().Len() != 0 {
		t.Error("consumer not deregistered")
	}
}
