package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courier/auth"
	"courier/domain"
	"courier/repositories"
	"courier/runtime"
	"courier/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*gin.Engine, *auth.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	users := repositories.NewUserRepository(db)
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, users.Put(domain.Profile{ID: id, Username: id}))
	}

	messages := repositories.NewMessageRepository(db, users, log, nil, 4096)
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(registry, log)
	router := runtime.NewRouter(registry, log)
	typing := runtime.NewTypingManager(router, time.Minute)
	t.Cleanup(typing.Stop)

	chat := services.NewChatService(messages, nil, router, typing, nil, 10, log)
	conversations := services.NewConversationService(messages, users, registry, log)

	verifier := auth.NewVerifier(testSecret)
	handlers := NewHandlers(chat, conversations, users, log)
	ws := NewWSHandler(broadcaster, chat, 16, log)
	return NewRouter(verifier, handlers, ws), verifier
}

func doJSON(t *testing.T, engine *gin.Engine, verifier *auth.Verifier,
	method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	token, err := verifier.Mint(userID, time.Hour)
	require.NoError(t, err)

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, request)
	return rec
}

func Test_SendMessage_Endpoint(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodPost, "/api/messages", "alice",
		gin.H{"recipient": "bob", "content": "hi"})

	req.Equal(http.StatusCreated, rec.Code)
	var body map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("alice", body["sender"])
	req.Equal("bob", body["recipient"])
	req.Equal("hi", body["content"])
	req.NotEmpty(body["id"])
}

func Test_SendMessage_Endpoint_Rejects_Blank_Content(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodPost, "/api/messages", "alice",
		gin.H{"recipient": "bob", "content": "   "})

	req.Equal(http.StatusBadRequest, rec.Code)
}

func Test_SendMessage_Endpoint_Unknown_Recipient_Is_404(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodPost, "/api/messages", "alice",
		gin.H{"recipient": "ghost", "content": "hi"})

	req.Equal(http.StatusNotFound, rec.Code)
}

func Test_Conversation_Flow_Over_HTTP(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodPost, "/api/messages", "alice",
		gin.H{"recipient": "bob", "content": "lunch?"})
	req.Equal(http.StatusCreated, rec.Code)

	// bob's summary shows one unread from alice
	rec = doJSON(t, engine, verifier, http.MethodGet, "/api/messages/conversations", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	var summaries []map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &summaries))
	req.Len(summaries, 1)
	req.Equal("alice", summaries[0]["counterpart"])
	req.Equal(float64(1), summaries[0]["unread_count"])
	req.Equal("offline", summaries[0]["status"])

	// Opening the conversation returns the page and marks it read
	rec = doJSON(t, engine, verifier, http.MethodGet, "/api/messages/conversation/alice", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	var page struct {
		Messages []map[string]any `json:"messages"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &page))
	req.Len(page.Messages, 1)
	req.Equal("lunch?", page.Messages[0]["content"])

	rec = doJSON(t, engine, verifier, http.MethodGet, "/api/messages/conversations", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &summaries))
	req.Equal(float64(0), summaries[0]["unread_count"])
}

func Test_MarkRead_Endpoint(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodPost, "/api/messages", "alice",
		gin.H{"recipient": "bob", "content": "ping"})
	req.Equal(http.StatusCreated, rec.Code)
	var sent map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &sent))

	rec = doJSON(t, engine, verifier, http.MethodPut, "/api/messages/read", "bob",
		gin.H{"message_ids": []string{sent["id"].(string)}})
	req.Equal(http.StatusOK, rec.Code)

	rec = doJSON(t, engine, verifier, http.MethodGet, "/api/messages/conversations", "bob", nil)
	var summaries []map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &summaries))
	req.Equal(float64(0), summaries[0]["unread_count"])
}

func Test_MarkRead_Endpoint_Rejects_Bad_ID(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodPut, "/api/messages/read", "bob",
		gin.H{"message_ids": []string{"not-a-uuid"}})

	req.Equal(http.StatusBadRequest, rec.Code)
}

func Test_ListUsers_Excludes_Viewer(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodGet, "/api/users", "alice", nil)

	req.Equal(http.StatusOK, rec.Code)
	var users []map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &users))
	req.Len(users, 1)
	req.Equal("bob", users[0]["id"])
}

func Test_GetUser_Unknown_Is_404(t *testing.T) {
	req := require.New(t)
	engine, verifier := newTestServer(t)

	rec := doJSON(t, engine, verifier, http.MethodGet, "/api/users/ghost", "alice", nil)

	req.Equal(http.StatusNotFound, rec.Code)
}

func Test_Routes_Require_Authentication(t *testing.T) {
	req := require.New(t)
	engine, _ := newTestServer(t)

	request := httptest.NewRequest(http.MethodGet, "/api/messages/conversations", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, request)

	req.Equal(http.StatusUnauthorized, rec.Code)
}
