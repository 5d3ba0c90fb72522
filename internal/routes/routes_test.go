package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"venty/internal/config"
	"venty/internal/moderation"
	"venty/internal/services"
	"venty/internal/utils"
	"venty/internal/violation"
	"venty/internal/websocket"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *utils.Meta `json:"meta"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	tokens *utils.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	cfg := &config.Config{
		App: config.AppConfig{Environment: "test", Version: "test"},
		Server: config.ServerConfig{
			HTTP:      config.HTTPConfig{RequestTimeout: 5 * time.Second},
			WebSocket: config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024},
			CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Negotiation: config.NegotiationConfig{MaxMessageLength: 2000, PageSize: 2, MaxPageSize: 10},
		Security: config.SecurityConfig{
			JWT:       config.JWTConfig{Secret: "user", ExpiryHour: 1, AdminSecret: "admin", AdminExpiryHour: 1},
			RateLimit: config.RateLimitConfig{Enabled: false},
		},
		Admin: config.AdminConfig{Username: "ops", PasswordHash: string(hash)},
	}

	counter := violation.NewCounter(violation.NewMemoryStore(), violation.Options{})
	svc := services.NewNegotiationService(services.NewMemoryConversationStore(), moderation.MustNewFilter(moderation.DefaultRules()), counter, services.Options{})

	hub := websocket.NewHub(cfg.Server.WebSocket)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	svc.SetNotifier(hub)

	tokens := utils.NewTokenManager(cfg.Security.JWT)
	router := gin.New()
	stop := SetupRoutes(router, Dependencies{Config: cfg, Service: svc, Hub: hub, Tokens: tokens})
	t.Cleanup(func() {
		stop()
		cancel()
	})

	return &testServer{t: t, router: router, tokens: tokens}
}

// profiles are the identities the test identity service vouches for.
var profiles = map[string]utils.UserProfile{
	"buyer": {UserID: "buyer", Role: "user", Name: "Mona", Phone: "01012345678", Email: "mona@example.com"},
	"shop":  {UserID: "shop", Role: "merchant", Name: "Cairo Bikes", Phone: "01287654321"},
}

func (s *testServer) userToken(id string) string {
	profile, ok := profiles[id]
	if !ok {
		profile = utils.UserProfile{UserID: id, Role: "user"}
	}
	token, err := s.tokens.GenerateUserJWT(profile)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return token
}

func (s *testServer) do(method, path, token, body string) (int, envelope) {
	s.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

const unifiedOpen = `{
	"variant": "unified",
	"context_ref": "product-42",
	"participants": [
		{"id": "buyer", "role": "user"},
		{"id": "shop", "role": "merchant"}
	]
}`

func (s *testServer) openUnified() string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/conversations", s.userToken("buyer"), unifiedOpen)
	if code != http.StatusCreated {
		s.t.Fatalf("open status = %d, body %+v", code, env)
	}
	var conv struct {
		ID     string `json:"id"`
		Role   string `json:"role"`
		Status string `json:"status"`
	}
	json.Unmarshal(env.Data, &conv)
	if conv.ID == "" || conv.Role != "user" || conv.Status != "negotiating" {
		s.t.Fatalf("open data = %s", env.Data)
	}
	return conv.ID
}

func TestOpenConversation(t *testing.T) {
	s := newTestServer(t)
	id := s.openUnified()

	code, env := s.do(http.MethodPost, "/api/v1/conversations", s.userToken("shop"), unifiedOpen)
	if code != http.StatusOK || !strings.Contains(string(env.Data), id) {
		t.Fatalf("reopen status = %d data = %s", code, env.Data)
	}
	if strings.Contains(string(env.Data), "01012345678") {
		t.Errorf("conversation view leaks contact: %s", env.Data)
	}

	code, _ = s.do(http.MethodPost, "/api/v1/conversations", s.userToken("stranger"), unifiedOpen)
	if code != http.StatusForbidden {
		t.Errorf("outsider open status = %d, want 403", code)
	}

	code, env = s.do(http.MethodPost, "/api/v1/conversations", s.userToken("buyer"),
		`{"variant":"auction","context_ref":"x","participants":[{"id":"buyer","role":"user"}]}`)
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("invalid open status = %d error = %+v", code, env.Error)
	}

	code, _ = s.do(http.MethodGet, "/api/v1/conversations/"+id, "", "")
	if code != http.StatusUnauthorized {
		t.Errorf("anonymous get status = %d, want 401", code)
	}
}

func TestOpenConversation_CounterpartContactComesFromTheirSession(t *testing.T) {
	s := newTestServer(t)
	forged := `{
		"variant": "unified",
		"context_ref": "product-42",
		"participants": [
			{"id": "buyer", "role": "user"},
			{"id": "shop", "role": "merchant", "display_name": "Shop", "phone": "FORGED-BY-BUYER"}
		]
	}`
	code, env := s.do(http.MethodPost, "/api/v1/conversations", s.userToken("buyer"), forged)
	if code != http.StatusCreated {
		t.Fatalf("open = %d %+v", code, env.Error)
	}
	var conv struct {
		ID string `json:"id"`
	}
	json.Unmarshal(env.Data, &conv)
	base := "/api/v1/conversations/" + conv.ID

	if code, _ = s.do(http.MethodPost, "/api/v1/conversations", s.userToken("shop"), unifiedOpen); code != http.StatusOK {
		t.Fatalf("shop reopen = %d", code)
	}
	s.do(http.MethodPost, base+"/agreement", s.userToken("buyer"), "")
	s.do(http.MethodPost, base+"/agreement", s.userToken("shop"), "")

	code, env = s.do(http.MethodGet, base+"/contacts", s.userToken("buyer"), "")
	if code != http.StatusOK {
		t.Fatalf("contacts = %d %+v", code, env.Error)
	}
	if strings.Contains(string(env.Data), "FORGED-BY-BUYER") || !strings.Contains(string(env.Data), "01287654321") {
		t.Errorf("contacts = %s", env.Data)
	}
}

func TestOpenConversation_RoleMismatch(t *testing.T) {
	s := newTestServer(t)
	swapped := `{"variant":"unified","context_ref":"product-42","participants":[{"id":"buyer","role":"merchant"},{"id":"shop","role":"user"}]}`

	code, env := s.do(http.MethodPost, "/api/v1/conversations", s.userToken("buyer"), swapped)
	if code != http.StatusForbidden || env.Error == nil || env.Error.Code != "ROLE_MISMATCH" {
		t.Errorf("open as merchant = %d %+v", code, env.Error)
	}
}

func TestSendMessage_Escalation(t *testing.T) {
	s := newTestServer(t)
	id := s.openUnified()
	buyer := s.userToken("buyer")
	path := "/api/v1/conversations/" + id + "/messages"

	code, env := s.do(http.MethodPost, path, buyer, `{"text":"Is 900 ok, you idiot?"}`)
	if code != http.StatusCreated {
		t.Fatalf("clean send status = %d %+v", code, env.Error)
	}
	if !strings.Contains(string(env.Data), `"text":"Is 900 ok, you ***?"`) {
		t.Errorf("sent view = %s", env.Data)
	}

	code, env = s.do(http.MethodPost, path, buyer, `{"text":"   "}`)
	if code != http.StatusBadRequest || env.Error.Code != "EMPTY_MESSAGE" {
		t.Errorf("empty send status = %d error = %+v", code, env.Error)
	}

	code, env = s.do(http.MethodPost, path, buyer, `{"text":"call me on 01012345678"}`)
	if code != http.StatusUnprocessableEntity || env.Error.Code != "POLICY_WARNING" {
		t.Fatalf("first violation status = %d error = %+v", code, env.Error)
	}
	if env.Error.Details["violation_count"] != "1" || env.Error.Message == "" {
		t.Errorf("warning details = %+v", env.Error)
	}

	code, env = s.do(http.MethodPost, path, buyer, `{"text":"telegram?"}`)
	if code != http.StatusForbidden || env.Error.Code != "SENDER_SUSPENDED" {
		t.Fatalf("second violation status = %d error = %+v", code, env.Error)
	}

	code, env = s.do(http.MethodGet, "/api/v1/violations/me", buyer, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"suspended":true`) {
		t.Errorf("violations/me = %d %s", code, env.Data)
	}

	code, env = s.do(http.MethodGet, path+"?limit=50", buyer, "")
	if code != http.StatusOK || env.Meta == nil || env.Meta.Total != 1 || env.Meta.Limit != 10 {
		t.Errorf("transcript = %d meta %+v", code, env.Meta)
	}
}

func TestAgreementAndContacts(t *testing.T) {
	s := newTestServer(t)
	id := s.openUnified()
	buyer, shop := s.userToken("buyer"), s.userToken("shop")
	base := "/api/v1/conversations/" + id

	code, env := s.do(http.MethodGet, base+"/contacts", buyer, "")
	if code != http.StatusConflict || env.Error.Code != "CONTACTS_HIDDEN" {
		t.Fatalf("contacts before agreement = %d %+v", code, env.Error)
	}

	if code, env = s.do(http.MethodPost, base+"/agreement", buyer, ""); code != http.StatusOK {
		t.Fatalf("buyer toggle = %d %+v", code, env.Error)
	}
	code, env = s.do(http.MethodPost, base+"/agreement", shop, "")
	if code != http.StatusOK || env.Message != "Both sides agreed" {
		t.Fatalf("shop toggle = %d %q", code, env.Message)
	}

	code, env = s.do(http.MethodGet, base+"/contacts", shop, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), "01012345678") {
		t.Errorf("contacts after agreement = %d %s", code, env.Data)
	}

	code, env = s.do(http.MethodPost, base+"/agreement", buyer, "")
	if code != http.StatusConflict || env.Error.Code != "AGREEMENT_LOCKED" {
		t.Errorf("toggle after agreement = %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodPost, base+"/messages", buyer, `{"text":"thanks"}`)
	if code != http.StatusConflict || env.Error.Code != "CHANNEL_LOCKED" {
		t.Errorf("send after agreement = %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodGet, base+"/messages", buyer, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), "01287654321") {
		t.Errorf("reveal message missing from transcript: %s", env.Data)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	id := s.openUnified()
	buyer := s.userToken("buyer")

	s.do(http.MethodPost, "/api/v1/conversations/"+id+"/messages", buyer, `{"text":"whatsapp me"}`)
	s.do(http.MethodPost, "/api/v1/conversations/"+id+"/messages", buyer, `{"text":"whatsapp me"}`)

	code, _ := s.do(http.MethodPost, "/api/v1/admin/login", "", `{"username":"ops","password":"wrong"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", code)
	}
	code, env := s.do(http.MethodPost, "/api/v1/admin/login", "", `{"username":"ops","password":"s3cret"}`)
	if code != http.StatusOK {
		t.Fatalf("login status = %d %+v", code, env.Error)
	}
	var login struct {
		Token string `json:"token"`
	}
	json.Unmarshal(env.Data, &login)

	if code, _ = s.do(http.MethodGet, "/api/v1/admin/violations/buyer", buyer, ""); code != http.StatusUnauthorized {
		t.Errorf("user token on admin route = %d, want 401", code)
	}

	code, env = s.do(http.MethodGet, "/api/v1/admin/violations/buyer", login.Token, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"count":2`) {
		t.Fatalf("get violations = %d %s", code, env.Data)
	}

	code, env = s.do(http.MethodDelete, "/api/v1/admin/violations/buyer", login.Token, "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"count":0`) {
		t.Fatalf("reset violations = %d %s", code, env.Data)
	}

	if code, env = s.do(http.MethodPost, "/api/v1/conversations/"+id+"/messages", buyer, `{"text":"sorry"}`); code != http.StatusCreated {
		t.Errorf("send after reset = %d %+v", code, env.Error)
	}

	code, env = s.do(http.MethodPost, "/api/v1/admin/conversations/"+id+"/close", login.Token, `{"reason":"fraud report"}`)
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"status":"closed"`) {
		t.Fatalf("admin close = %d %s", code, env.Data)
	}
	code, env = s.do(http.MethodPost, "/api/v1/conversations/"+id+"/messages", buyer, `{"text":"hello?"}`)
	if code != http.StatusConflict || env.Error.Code != "CHANNEL_LOCKED" {
		t.Errorf("send after close = %d %+v", code, env.Error)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}
