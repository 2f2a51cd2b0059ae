package acceptance

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/chargeslot-backend/api"
	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/internal/middleware"
	"github.com/semanticallynull/chargeslot-backend/internal/schema"
	"github.com/semanticallynull/chargeslot-backend/notify"
	"github.com/semanticallynull/chargeslot-backend/reservation"
	"github.com/semanticallynull/chargeslot-backend/slot"
	"github.com/semanticallynull/chargeslot-backend/station"
)

type TestServer struct {
	DB          *sqlx.DB
	Router      *gin.Engine
	Notes       *notify.Recorder
	StationRepo *station.Repository
	SlotRepo    *slot.Repository
	BookingRepo *booking.Repository
	Generator   *slot.Generator
	Engine      *reservation.Engine
	Manager     *booking.Manager
}

// NewTestServer wires the API to Postgres. Tests are skipped unless DATABASE_URL is set.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sqlx.Connect("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := schema.Apply(context.Background(), db); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	// Clean up test data before each test
	cleanupTestData(t, db)

	sr := station.NewRepository(db)
	slr := slot.NewRepository(db)
	br := booking.NewRepository(db)
	rec := notify.NewRecorder()
	dispatcher := notify.NewDispatcher(rec, nil, nil)

	ts := &TestServer{
		DB:          db,
		Notes:       rec,
		StationRepo: sr,
		SlotRepo:    slr,
		BookingRepo: br,
		Generator:   slot.NewGenerator(sr, slr, nil),
		Engine:      reservation.NewEngine(slr, br, sr, dispatcher, nil, nil),
		Manager:     booking.NewManager(br, slr, dispatcher, nil, nil),
	}

	a := api.New(api.Config{
		Stations:  sr,
		Slots:     slr,
		Bookings:  br,
		Generator: ts.Generator,
		Reserver:  ts.Engine,
		Lifecycle: ts.Manager,
		Auth:      []gin.HandlerFunc{middleware.HeaderAuth()},
	})
	ts.Router = a.Router()

	return ts
}

func (ts *TestServer) Close() {
	ts.DB.Close()
}

func cleanupTestData(t *testing.T, db *sqlx.DB) {
	t.Helper()

	// Delete in order of dependencies
	for _, table := range []string{"bookings", "slots", "stations"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
}

// Helper methods for making requests
func (ts *TestServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodGet, path, nil, headers)
}

func (ts *TestServer) POST(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, headers)
}

func (ts *TestServer) PUT(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPut, path, body, headers)
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodDelete, path, nil, headers)
}

func asUser(id string) map[string]string {
	return map[string]string{middleware.UserIDHeader: id, middleware.RoleHeader: "user"}
}

func asOwner(id string) map[string]string {
	return map[string]string{middleware.UserIDHeader: id, middleware.RoleHeader: "owner"}
}

// CreateTestStation stores a published station with the given chargers.
func (ts *TestServer) CreateTestStation(t *testing.T, ownerID string, chargers ...station.Charger) station.Station {
	t.Helper()
	st := &station.Station{
		OwnerID:  ownerID,
		Name:     "Test Station",
		Address:  "Test Address",
		Location: station.NewLocation(18.5204, 73.8567),
		Status:   station.Published,
		Chargers: chargers,
	}
	if err := ts.StationRepo.CreateStation(context.Background(), st); err != nil {
		t.Fatalf("failed to create test station: %v", err)
	}
	return *st
}

// CreateTestSlot inserts a free slot directly.
func (ts *TestServer) CreateTestSlot(t *testing.T, stationID string, start time.Time, d time.Duration) string {
	t.Helper()
	var id string
	err := ts.DB.Get(&id, `
		INSERT INTO slots (id, station_id, charger_index, unit_index, charger_type, start_time, end_time)
		VALUES (gen_random_uuid(), $1, 0, 0, 'AC', $2, $3)
		RETURNING id
	`, stationID, start, start.Add(d))
	if err != nil {
		t.Fatalf("failed to create test slot: %v", err)
	}
	return id
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return v
}

func tomorrow() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
