package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
	"designguard/internal/user"
)

type authFunc func(r *http.Request) (identity.Identity, error)

func (f authFunc) Authenticate(r *http.Request) (identity.Identity, error) { return f(r) }

// tokenAuth treats ?token=<id> as a valid credential for user <id>.
var tokenAuth = authFunc(func(r *http.Request) (identity.Identity, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("token"), 10, 64)
	if err != nil {
		return identity.Identity{}, apperr.Authentication("Token is not valid")
	}
	return identity.Identity{UserID: id}, nil
})

type userLookupFunc func(ctx context.Context, id int64) (*user.User, error)

func (f userLookupFunc) FindByID(ctx context.Context, id int64) (*user.User, error) { return f(ctx, id) }

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	roles := map[int64]identity.Role{1: identity.RoleVepari, 2: identity.RoleFactoryOwner, 3: identity.RoleVepari}
	store := newFakeStore(roles)
	users := userLookupFunc(func(_ context.Context, id int64) (*user.User, error) {
		role, ok := roles[id]
		if !ok {
			return nil, apperr.NotFound("User not found")
		}
		return &user.User{ID: id, Email: "u" + strconv.FormatInt(id, 10) + "@example.com", Role: role}, nil
	})
	relay := NewRelay(hub, store, nil, zap.NewNop())
	h := NewHandler(hub, relay, store, tokenAuth, users, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/ws", h.ServeWs)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				id, err := tokenAuth(req)
				if err != nil {
					apperr.Write(w, nil, err)
					return
				}
				id.Role = roles[id.UserID]
				next.ServeHTTP(w, req.WithContext(identity.WithIdentity(req.Context(), id)))
			})
		})
		r.Get("/api/chat/history/{roomId}", h.History)
		r.Get("/api/chat/rooms", h.Rooms)
		r.Post("/api/chat/room", h.CreateRoom)
		r.Post("/api/chat/clear", h.Clear)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn, want string, into any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read %s: %v", want, err)
	}
	if env.Event != want {
		t.Fatalf("event = %s (%s), want %s", env.Event, env.Data, want)
	}
	if into != nil {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatal(err)
		}
	}
}

func TestServeWsRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	for name, token := range map[string]string{"missing": "", "invalid": "abc", "unknown user": "99"} {
		t.Run(name, func(t *testing.T) {
			conn, resp, err := dial(t, srv, token)
			if err == nil {
				conn.Close()
				t.Fatal("handshake should fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("resp = %v", resp)
			}
		})
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	a, _, err := dial(t, srv, "1")
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, _, err := dial(t, srv, "2")
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	a.WriteJSON(map[string]any{"event": "join_room", "data": map[string]any{"vepariId": 1, "factoryId": 2}})
	var joined RoomJoined
	readEvent(t, a, EventRoomJoined, &joined)
	b.WriteJSON(map[string]any{"event": "join_room", "data": map[string]any{"vepariId": "1", "factoryId": "2"}})
	readEvent(t, b, EventRoomJoined, nil)

	a.WriteJSON(map[string]any{"event": "send_message", "data": map[string]any{"message": "Hello", "vepariId": 1, "factoryId": 2}})
	for _, conn := range []*websocket.Conn{a, b} {
		var msg ReceiveMessage
		readEvent(t, conn, EventReceiveMessage, &msg)
		if msg.SenderID != 1 || msg.Message != "Hello" || msg.SenderEmail != "u1@example.com" || msg.RoomID != joined.RoomID {
			t.Fatalf("receive_message = %+v", msg)
		}
	}
}

func TestHistoryAccess(t *testing.T) {
	srv, store := newTestServer(t)
	room, _ := store.UpsertRoom(context.Background(), 1, 2)
	for i := 0; i < 3; i++ {
		store.SaveMessage(context.Background(), room.ID, 1, "m"+strconv.Itoa(i))
	}

	resp, err := http.Get(srv.URL + "/api/chat/history/" + strconv.FormatInt(room.ID, 10) + "?token=3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/chat/history/" + strconv.FormatInt(room.ID, 10) + "?token=2&limit=2&page=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body HistoryResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if len(body.Messages) != 2 || body.Messages[0].MessageText != "m0" {
		t.Fatalf("messages = %+v", body.Messages)
	}
	want := Pagination{CurrentPage: 1, TotalPages: 2, TotalMessages: 3, HasMore: true}
	if body.Pagination != want {
		t.Fatalf("pagination = %+v, want %+v", body.Pagination, want)
	}
	if body.RoomInfo == nil || body.RoomInfo.ID != room.ID {
		t.Fatalf("roomInfo = %+v", body.RoomInfo)
	}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateRoom(t *testing.T) {
	srv, store := newTestServer(t)

	resp := post(t, srv.URL+"/api/chat/room?token=2", `{"vepariId":2,"factoryId":1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var room Room
	json.NewDecoder(resp.Body).Decode(&room)
	if room.VepariID != 1 || room.FactoryID != 2 {
		t.Fatalf("room not canonical: %+v", room)
	}

	again := post(t, srv.URL+"/api/chat/room?token=1", `{"vepariId":"1","factoryId":"2"}`)
	var room2 Room
	json.NewDecoder(again.Body).Decode(&room2)
	if room2.ID != room.ID || len(store.byID) != 1 {
		t.Fatalf("duplicate room created: %d vs %d", room2.ID, room.ID)
	}

	tests := []struct {
		name string
		url  string
		body string
		code int
	}{
		{"not a participant", "/api/chat/room?token=3", `{"vepariId":1,"factoryId":2}`, http.StatusForbidden},
		{"bad roles", "/api/chat/room?token=1", `{"vepariId":1,"factoryId":3}`, http.StatusBadRequest},
		{"unknown user", "/api/chat/room?token=1", `{"vepariId":1,"factoryId":77}`, http.StatusBadRequest},
		{"missing ids", "/api/chat/room?token=1", `{}`, http.StatusBadRequest},
		{"no token", "/api/chat/room", `{"vepariId":1,"factoryId":2}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := post(t, srv.URL+tt.url, tt.body); resp.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.code)
			}
		})
	}
}

func TestClearHistory(t *testing.T) {
	srv, store := newTestServer(t)
	room, _ := store.UpsertRoom(context.Background(), 1, 2)
	store.SaveMessage(context.Background(), room.ID, 1, "a")
	store.SaveMessage(context.Background(), room.ID, 2, "b")

	if resp := post(t, srv.URL+"/api/chat/clear?token=3", `{"roomId":`+strconv.FormatInt(room.ID, 10)+`}`); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider status = %d", resp.StatusCode)
	}

	resp := post(t, srv.URL+"/api/chat/clear?token=1", `{"roomId":`+strconv.FormatInt(room.ID, 10)+`}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body ClearResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if !body.Success || body.DeletedCount != 2 {
		t.Fatalf("body = %+v", body)
	}
	if store.count(room.ID) != 0 {
		t.Fatal("messages not deleted")
	}

	if resp := post(t, srv.URL+"/api/chat/clear?token=1", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing room status = %d", resp.StatusCode)
	}
}
