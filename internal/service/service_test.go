package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/code"
	"github.com/iliyamo/event-reservation/internal/database"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var testStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.ReservationMessage
}

func (p *recordingPublisher) Publish(_ context.Context, m queue.ReservationMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Type)
	}
	return out
}

func (p *recordingPublisher) last() queue.ReservationMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs[len(p.msgs)-1]
}

// MockPublisher mocks the message broker
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg queue.ReservationMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type testEnv struct {
	db           *sql.DB
	clock        *clock.Fake
	pub          *recordingPublisher
	deps         Deps
	events       *EventService
	reservations *ReservationService
	stats        *StatsService
	users        *UserService
	seq          int
	// tag keeps emails unique on databases that outlive the test.
	tag string
}

// mysqlDSNEnv names the variable holding a MySQL DSN for the tests that
// need real row locks, e.g. "root:pw@tcp(127.0.0.1:3306)/events_test?parseTime=true&loc=UTC".
const mysqlDSNEnv = "EVENTS_TEST_MYSQL_DSN"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	return newTestEnvOn(t, db, database.SQLite)
}

func newMySQLTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := os.Getenv(mysqlDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", mysqlDSNEnv)
	}
	db, err := database.OpenMySQL(dsn)
	require.NoError(t, err)
	return newTestEnvOn(t, db, database.MySQL)
}

func newTestEnvOn(t *testing.T, db *sql.DB, dialect database.Dialect) *testEnv {
	t.Helper()
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, dialect))

	env := &testEnv{
		db:    db,
		clock: clock.NewFake(testStart),
		pub:   &recordingPublisher{},
		tag:   strconv.FormatInt(time.Now().UnixNano(), 36),
	}
	env.deps = Deps{
		DB:           db,
		Events:       repository.NewEventRepo(db, dialect),
		Reservations: repository.NewReservationRepo(db),
		Users:        repository.NewUserRepo(db),
		Codes:        code.New("EVT-", 5, 100),
		Clock:        env.clock,
		Publisher:    env.pub,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Rules:        DefaultRules(),
	}
	env.rebuild()
	return env
}

// rebuild recreates the services after a test swaps one of the deps.
func (e *testEnv) rebuild() {
	e.events = NewEventService(e.deps)
	e.reservations = NewReservationService(e.deps)
	e.stats = NewStatsService(e.deps)
	e.users = NewUserService(e.deps, bcrypt.MinCost)
}

func (e *testEnv) user(t *testing.T, role model.Role) *model.User {
	t.Helper()
	e.seq++
	u := &model.User{
		Email:        fmt.Sprintf("user%d-%s@example.com", e.seq, e.tag),
		PasswordHash: "x",
		FirstName:    "User",
		LastName:     fmt.Sprint(e.seq),
		Role:         role,
		Active:       true,
		CreatedAt:    e.clock.Now(),
	}
	require.NoError(t, e.deps.Users.Create(context.Background(), u))
	return u
}

type eventOpts struct {
	capacity int
	price    int64
	startsIn time.Duration
	length   time.Duration
}

func (e *testEnv) draftEvent(t *testing.T, organizer *model.User, o eventOpts) *model.Event {
	t.Helper()
	if o.startsIn == 0 {
		o.startsIn = 30 * 24 * time.Hour
	}
	if o.length == 0 {
		o.length = 3 * time.Hour
	}
	start := e.clock.Now().Add(o.startsIn)
	ev, err := e.events.Create(context.Background(), organizer.ID, EventInput{
		Title:          "Jazz night",
		Category:       model.CategoryConcert,
		StartsAt:       start,
		EndsAt:         start.Add(o.length),
		Venue:          "Blue Room",
		City:           "Lyon",
		Capacity:       o.capacity,
		UnitPriceCents: o.price,
	})
	require.NoError(t, err)
	return ev
}

func (e *testEnv) publishedEvent(t *testing.T, organizer *model.User, o eventOpts) *model.Event {
	t.Helper()
	ev := e.draftEvent(t, organizer, o)
	ev, err := e.events.Publish(context.Background(), ev.ID, organizer.ID)
	require.NoError(t, err)
	return ev
}

func (e *testEnv) reservation(t *testing.T, id uint64) *model.Reservation {
	t.Helper()
	r, err := e.deps.Reservations.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (e *testEnv) reserved(t *testing.T, eventID uint64) int {
	t.Helper()
	v, err := e.events.Get(context.Background(), eventID, 0)
	require.NoError(t, err)
	return v.Usage.Reserved
}
