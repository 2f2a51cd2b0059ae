package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/api"
	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/internal/memstore"
	"github.com/semanticallynull/chargeslot-backend/internal/middleware"
	"github.com/semanticallynull/chargeslot-backend/notify"
	"github.com/semanticallynull/chargeslot-backend/reservation"
	"github.com/semanticallynull/chargeslot-backend/slot"
	"github.com/semanticallynull/chargeslot-backend/station"
)

const ownerID = "owner-1"

type TestServer struct {
	Store    *memstore.Store
	Notes    *notify.Recorder
	Router   *gin.Engine
	Station  station.Station
	Tomorrow time.Time
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	rec := notify.NewRecorder()
	dispatcher := notify.NewDispatcher(rec, nil, nil)

	st := &station.Station{
		OwnerID: ownerID,
		Name:    "Test Station",
		Status:  station.Published,
		Chargers: station.Chargers{
			{Type: station.AC, PowerKW: 7.4, PricePerKWh: 12, Count: 1},
		},
	}
	if err := store.Stations().CreateStation(context.Background(), st); err != nil {
		t.Fatalf("failed to create station: %v", err)
	}

	a := api.New(api.Config{
		Stations:  store.Stations(),
		Slots:     store.Slots(),
		Bookings:  store.Bookings(),
		Generator: slot.NewGenerator(store.Stations(), store.Slots(), nil),
		Reserver:  reservation.NewEngine(store.Slots(), store.Bookings(), store.Stations(), dispatcher, nil, nil),
		Lifecycle: booking.NewManager(store.Bookings(), store.Slots(), dispatcher, nil, nil),
		Auth:      []gin.HandlerFunc{middleware.HeaderAuth()},
	})

	now := time.Now().UTC()
	return &TestServer{
		Store:    store,
		Notes:    rec,
		Router:   a.Router(),
		Station:  *st,
		Tomorrow: time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC),
	}
}

func asUser(id string) map[string]string {
	return map[string]string{middleware.UserIDHeader: id, middleware.RoleHeader: "user"}
}

func asOwner(id string) map[string]string {
	return map[string]string{middleware.UserIDHeader: id, middleware.RoleHeader: "owner"}
}

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

type slotResponse struct {
	ID           uuid.UUID `json:"id"`
	ChargerIndex int       `json:"chargerIndex"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Reserved     bool      `json:"reserved"`
}

type bookingResponse struct {
	ID     uuid.UUID      `json:"id"`
	SlotID *uuid.UUID     `json:"slotId"`
	Status booking.Status `json:"status"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return v
}

func (ts *TestServer) generate(t *testing.T, cfg map[string]any) {
	t.Helper()
	w := ts.POST("/owner/stations/"+ts.Station.ID.String()+"/slots", cfg, asOwner(ownerID))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
}

func (ts *TestServer) listFree(t *testing.T) []slotResponse {
	t.Helper()
	path := "/stations/" + ts.Station.ID.String() + "/slots?from=" + ts.Tomorrow.Format(time.RFC3339)
	w := ts.GET(path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	return decode[[]slotResponse](t, w)
}

func (ts *TestServer) reserve(t *testing.T, slotID uuid.UUID, userID string) reservation.Result {
	t.Helper()
	w := ts.POST("/bookings", map[string]any{"slotId": slotID}, asUser(userID))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	return decode[reservation.Result](t, w)
}

// Slot generation and listing

func TestGenerateSlots_CreatesWindowsListedInOrder(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/owner/stations/"+ts.Station.ID.String()+"/slots",
		map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 11, "daysAhead": 2}, asOwner(ownerID))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	slots := ts.listFree(t)
	if len(slots) != 2 {
		t.Fatalf("expected tomorrow's 2 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(ts.Tomorrow.Add(9*time.Hour)) || !slots[1].Start.Equal(ts.Tomorrow.Add(10*time.Hour)) {
		t.Errorf("expected 09:00 and 10:00, got %v and %v", slots[0].Start, slots[1].Start)
	}
	if !slots[0].End.Equal(slots[1].Start) {
		t.Errorf("expected back to back windows, got %v and %v", slots[0].End, slots[1].Start)
	}
}

func TestGenerateSlots_RejectsInvalidConfig(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/owner/stations/"+ts.Station.ID.String()+"/slots",
		map[string]any{"slotMinutes": 45, "startHour": 9, "endHour": 11, "daysAhead": 1}, asOwner(ownerID))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
	resp := decode[map[string]string](t, w)
	if resp["code"] != "INVALID_CONFIG" || resp["field"] != "slotMinutes" {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestGenerateSlots_Authorization(t *testing.T) {
	ts := NewTestServer(t)
	path := "/owner/stations/" + ts.Station.ID.String() + "/slots"
	cfg := map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 10, "daysAhead": 1}

	if w := ts.POST(path, cfg, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no caller: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	if w := ts.POST(path, cfg, asUser("user-1")); w.Code != http.StatusForbidden {
		t.Errorf("plain user: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if w := ts.POST(path, cfg, asOwner("owner-2")); w.Code != http.StatusForbidden {
		t.Errorf("other owner: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	admin := map[string]string{middleware.UserIDHeader: "admin-1", middleware.RoleHeader: "admin"}
	if w := ts.POST(path, cfg, admin); w.Code != http.StatusCreated {
		t.Errorf("admin: expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if w := ts.POST("/owner/stations/"+uuid.NewString()+"/slots", cfg, asOwner(ownerID)); w.Code != http.StatusNotFound {
		t.Errorf("unknown station: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestListSlots_BadQuery(t *testing.T) {
	ts := NewTestServer(t)
	base := "/stations/" + ts.Station.ID.String() + "/slots"

	for _, q := range []string{"?from=yesterday", "?to=soon", "?onlyFree=maybe", "?from=2026-03-02T10:00:00Z&to=2026-03-02T09:00:00Z"} {
		if w := ts.GET(base+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", q, http.StatusBadRequest, w.Code)
		}
	}
	if w := ts.GET("/stations/not-a-uuid/slots", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for a bad station id, got %d", http.StatusBadRequest, w.Code)
	}
}

// Reservation

func TestCreateBooking_SecondReservationConflicts(t *testing.T) {
	ts := NewTestServer(t)
	ts.generate(t, map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 10, "daysAhead": 2})
	s := ts.listFree(t)[0]

	res := ts.reserve(t, s.ID, "user-1")
	if res.Status != booking.StatusPending {
		t.Errorf("expected status pending, got %s", res.Status)
	}

	w := ts.POST("/bookings", map[string]any{"slotId": s.ID}, asUser("user-2"))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
	if code := decode[map[string]string](t, w)["code"]; code != "SLOT_ALREADY_RESERVED" {
		t.Errorf("expected SLOT_ALREADY_RESERVED, got %s", code)
	}

	if len(ts.listFree(t)) != 0 {
		t.Error("expected the reserved slot to be gone from the free list")
	}
}

func TestCreateBooking_ConcurrentRequests(t *testing.T) {
	ts := NewTestServer(t)
	ts.generate(t, map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 10, "daysAhead": 2})
	s := ts.listFree(t)[0]

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = ts.POST("/bookings", map[string]any{"slotId": s.ID}, asUser(uuid.NewString())).Code
		}()
	}
	wg.Wait()

	created, conflict := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflict++
		}
	}
	if created != 1 || conflict != 1 {
		t.Errorf("expected one 201 and one 409, got %v", codes)
	}

	w := ts.GET("/owner/bookings", asOwner(ownerID))
	if n := len(decode[[]bookingResponse](t, w)); n != 1 {
		t.Errorf("expected exactly one booking, got %d", n)
	}
}

func TestCreateBooking_Shapes(t *testing.T) {
	ts := NewTestServer(t)
	start := ts.Tomorrow.Add(14 * time.Hour)
	end := start.Add(time.Hour)

	w := ts.POST("/bookings", map[string]any{
		"demo": true, "stationId": ts.Station.ID, "start": start, "end": end,
	}, asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("window: expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if res := decode[reservation.Result](t, w); res.CreatedSlotID == nil {
		t.Error("window: expected createdSlotId")
	}

	w = ts.POST("/bookings", map[string]any{"demo": true, "start": start, "end": end}, asUser("user-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("unbacked: expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	bad := []map[string]any{
		{},
		{"slotId": "not-a-uuid"},
		{"demo": true},
		{"demo": true, "stationId": "nope", "start": start, "end": end},
		{"demo": true, "start": end, "end": start},
	}
	for _, body := range bad {
		if w := ts.POST("/bookings", body, asUser("user-1")); w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected status %d, got %d: %s", body, http.StatusBadRequest, w.Code, w.Body.String())
		}
	}

	w = ts.POST("/bookings", map[string]any{"demo": true, "stationId": uuid.New(), "start": start, "end": end}, asUser("user-1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown station: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if w := ts.POST("/bookings", map[string]any{"slotId": uuid.New()}, asUser("user-1")); w.Code != http.StatusNotFound {
		t.Errorf("unknown slot: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

// Lifecycle

func TestDecision_RejectFreesSlot(t *testing.T) {
	ts := NewTestServer(t)
	ts.generate(t, map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 10, "daysAhead": 2})
	s := ts.listFree(t)[0]
	res := ts.reserve(t, s.ID, "user-1")
	path := "/owner/bookings/" + res.BookingID.String() + "/decision"

	if w := ts.PUT(path, map[string]string{"action": "reject"}, asOwner("owner-2")); w.Code != http.StatusForbidden {
		t.Errorf("other owner: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if w := ts.PUT(path, map[string]string{"action": "later"}, asOwner(ownerID)); w.Code != http.StatusBadRequest {
		t.Errorf("bad action: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w := ts.PUT(path, map[string]string{"action": "reject"}, asOwner(ownerID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if w := ts.PUT(path, map[string]string{"action": "accept"}, asOwner(ownerID)); w.Code != http.StatusConflict {
		t.Errorf("second decision: expected status %d, got %d", http.StatusConflict, w.Code)
	}

	mine := decode[[]bookingResponse](t, ts.GET("/bookings/me", asUser("user-1")))
	if len(mine) != 1 || mine[0].Status != booking.StatusRejected {
		t.Errorf("expected the rejected booking to be kept, got %+v", mine)
	}
	if free := ts.listFree(t); len(free) != 1 || free[0].ID != s.ID {
		t.Errorf("expected the slot to be free again, got %+v", free)
	}
	if len(ts.Notes.On(notify.UserChannel("user-1"))) != 1 {
		t.Error("expected the user to be notified of the decision")
	}
}

func TestCancel_AcceptedBookingIsInvalidState(t *testing.T) {
	ts := NewTestServer(t)
	ts.generate(t, map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 10, "daysAhead": 2})
	s := ts.listFree(t)[0]
	res := ts.reserve(t, s.ID, "user-1")

	w := ts.PUT("/owner/bookings/"+res.BookingID.String()+"/decision", map[string]string{"action": "accept"}, asOwner(ownerID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	w = ts.DELETE("/bookings/"+res.BookingID.String(), asUser("user-1"))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
	if code := decode[map[string]string](t, w)["code"]; code != "INVALID_STATE" {
		t.Errorf("expected INVALID_STATE, got %s", code)
	}
}

func TestCancel_PendingBookingIsRemoved(t *testing.T) {
	ts := NewTestServer(t)
	ts.generate(t, map[string]any{"slotMinutes": 60, "startHour": 9, "endHour": 10, "daysAhead": 2})
	s := ts.listFree(t)[0]
	res := ts.reserve(t, s.ID, "user-1")
	path := "/bookings/" + res.BookingID.String()

	if w := ts.DELETE(path, asUser("user-2")); w.Code != http.StatusForbidden {
		t.Errorf("other user: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if w := ts.DELETE(path, asUser("user-1")); w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if w := ts.DELETE(path, asUser("user-1")); w.Code != http.StatusNotFound {
		t.Errorf("second cancel: expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if mine := decode[[]bookingResponse](t, ts.GET("/bookings/me", asUser("user-1"))); len(mine) != 0 {
		t.Errorf("expected no bookings left, got %+v", mine)
	}
	if free := ts.listFree(t); len(free) != 1 || free[0].ID != s.ID {
		t.Errorf("expected the slot to be free again, got %+v", free)
	}
}

func TestStation_Get(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.GET("/stations/"+ts.Station.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "published" || resp["ownerId"] != ownerID {
		t.Errorf("unexpected station: %v", resp)
	}

	if w := ts.GET("/stations/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHealth(t *testing.T) {
	ts := NewTestServer(t)
	if w := ts.GET("/health", nil); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}
