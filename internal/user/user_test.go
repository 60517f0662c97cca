package user

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "users.json")
	store, err := OpenFileStore(path)
	require.NoError(t, err)
	svc := NewService(store, nil)
	svc.hashCost = bcrypt.MinCost
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC) }
	return svc, store, path
}

func register(t *testing.T, svc *Service, name string) User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterRequest{Username: name, Email: name + "@example.com", Password: "secret"})
	require.NoError(t, err)
	return u
}

func patch(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var p map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func TestOpenFileStore_CreatesEmptyFile(t *testing.T) {
	_, _, path := newTestService(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(data))
}

func TestOpenFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := OpenFileStore(path)
	require.Error(t, err)
}

func TestRegister_Defaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := register(t, svc, "alice")

	require.Equal(t, "Balanced", u.Mode)
	require.Equal(t, "2024-03-09", u.Joined)
	require.Nil(t, u.Latitude)
	require.Nil(t, u.TelegramChatID)
	require.Empty(t, u.ActiveConditions)
	require.NotEqual(t, "secret", u.PasswordHash)
}

func TestRegister_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "a@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Register(ctx, RegisterRequest{Username: "bob", Password: "x"})
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(ctx, RegisterRequest{Username: "bob", Email: "not-an-email", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(ctx, RegisterRequest{Username: "b!", Email: "b@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice")
	ctx := context.Background()

	u, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Username: "nobody", Password: "secret"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice"})
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	svc, _, path := newTestService(t)
	register(t, svc, "alice")

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	svc2 := NewService(reopened, nil)

	_, err = svc2.Login(context.Background(), LoginRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
}

func TestUser_JSONHidesPasswordHash(t *testing.T) {
	svc, _, path := newTestService(t)
	u := register(t, svc, "alice")

	b, err := json.Marshal(u)
	require.NoError(t, err)
	require.NotContains(t, string(b), "password")
	require.Contains(t, string(b), `"active_conditions":[]`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"password_hash"`)
}

func TestUpdate_AppliesKnownFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice")

	u, fields, err := svc.Update(context.Background(), "alice", patch(t, `{
		"username": "mallory",
		"password": "hijack",
		"mode": "health-first",
		"age": 34,
		"latitude": 23.02,
		"longitude": 72.57,
		"city": "Ahmedabad",
		"telegram_chat_id": 123456789,
		"joined": "1999-01-01",
		"notifications": {}
	}`))
	require.NoError(t, err)
	require.Equal(t, []string{"age", "city", "latitude", "longitude", "mode", "telegram_chat_id"}, fields)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "Health-first", u.Mode)
	require.Equal(t, "2024-03-09", u.Joined)
	require.Equal(t, "123456789", u.ChatID())

	loc, ok := u.Location()
	require.True(t, ok)
	require.Equal(t, "Ahmedabad", loc.City)

	_, err = svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err, "password must not be patchable")
}

func TestUpdate_NullClears(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice")
	ctx := context.Background()

	_, _, err := svc.Update(ctx, "alice", patch(t, `{"telegram_chat_id": "@aeris_alerts", "age": 40}`))
	require.NoError(t, err)

	u, fields, err := svc.Update(ctx, "alice", patch(t, `{"telegram_chat_id": null, "age": null}`))
	require.NoError(t, err)
	require.Equal(t, []string{"age", "telegram_chat_id"}, fields)
	require.Nil(t, u.TelegramChatID)
	require.Nil(t, u.Age)
}

func TestUpdate_ValidationLeavesUserUnchanged(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice")
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"bad mode", `{"mode": "Low"}`},
		{"latitude out of range", `{"latitude": 91, "longitude": 0}`},
		{"only latitude", `{"latitude": 10}`},
		{"bad chat id", `{"telegram_chat_id": "abc"}`},
		{"bad age", `{"age": -1}`},
		{"bad email", `{"email": "nope"}`},
		{"wrong type", `{"age": "old"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Update(ctx, "alice", patch(t, `{"conditions": "asthma"}`))
			require.NoError(t, err)

			_, _, err = svc.Update(ctx, "alice", patch(t, tt.body))
			require.ErrorIs(t, err, ErrInvalidInput)

			u, err := svc.Get(ctx, "alice")
			require.NoError(t, err)
			require.Equal(t, "Balanced", u.Mode)
			require.Nil(t, u.Latitude)
			require.Nil(t, u.Age)
		})
	}
}

func TestUpdate_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Update(context.Background(), "ghost", patch(t, `{"mode": "Balanced"}`))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordAlert(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc, "alice")
	at := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	u, err := svc.RecordAlert(context.Background(), "alice", at, "Thunderstorm, High Wind (65 km/h)", []string{"Thunderstorm", "High Wind (65 km/h)"})
	require.NoError(t, err)
	require.Equal(t, at, *u.LastAlertTime)
	require.Equal(t, "Thunderstorm, High Wind (65 km/h)", *u.LastAlertReason)
	require.Equal(t, []string{"Thunderstorm", "High Wind (65 km/h)"}, u.ActiveConditions)

	users, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, u.ActiveConditions, users[0].ActiveConditions)
}

func TestFileStore_ReturnsCopies(t *testing.T) {
	svc, store, _ := newTestService(t)
	register(t, svc, "alice")
	_, err := svc.RecordAlert(context.Background(), "alice", time.Now(), "Heavy Rain", []string{"Heavy Rain"})
	require.NoError(t, err)

	u, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	u.ActiveConditions[0] = "mutated"

	again, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "Heavy Rain", again.ActiveConditions[0])
}
