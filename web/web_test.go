package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/adapters/clock"
	"github.com/victorteokw/docmap/adapters/hasher"
	"github.com/victorteokw/docmap/adapters/idgen"
	"github.com/victorteokw/docmap/adapters/memory"
	"github.com/victorteokw/docmap/adapters/random"
	"github.com/victorteokw/docmap/adapters/session"
	"github.com/victorteokw/docmap/adapters/upload"
	"github.com/victorteokw/docmap/core/demo"
	"github.com/victorteokw/docmap/core/engine"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/relation"
	"github.com/victorteokw/docmap/core/validation"
	"github.com/victorteokw/docmap/ports"
	"github.com/victorteokw/docmap/web"
)

type testAPI struct {
	router chi.Router
	codes  *random.Fake
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := registry.New()
	if err := demo.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := memory.NewDocStore()
	for _, ent := range reg.All() {
		spec := ports.CollectionSpec{Name: ent.Collection, Unique: ent.UniqueGroups()}
		if err := store.EnsureCollection(context.Background(), spec); err != nil {
			t.Fatalf("ensure %s: %v", ent.Collection, err)
		}
	}
	med := persist.New(store, time.Second, zerolog.Nop())
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	codes := random.NewFake()
	uploads, err := upload.NewLocal(t.TempDir(), "http://localhost:9080/uploads")
	if err != nil {
		t.Fatalf("uploads: %v", err)
	}
	pipe := validation.New(med, hasher.Fake{}, clk, codes, uploads)
	res := relation.New(med, reg)
	eng := engine.New(reg, med, pipe, res, idgen.NewSequential("id"), hasher.Fake{}, zerolog.Nop(), nil)
	h := web.NewHandler(web.Deps{
		Engine:    eng,
		Registry:  reg,
		Tokens:    session.NewTokenService("test-secret", time.Hour),
		Uploads:   uploads,
		UploadDir: uploads.Dir(),
		Logger:    zerolog.Nop(),
	})
	return &testAPI{router: h.Router(""), codes: codes}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func (a *testAPI) signUp(t *testing.T, username string) map[string]any {
	t.Helper()
	w, body := a.do(t, http.MethodPost, "/users", "", map[string]any{
		"username": username,
		"password": "secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("sign up %s: %d %s", username, w.Code, w.Body.String())
	}
	return body
}

func (a *testAPI) signIn(t *testing.T, username string) string {
	t.Helper()
	w, body := a.do(t, http.MethodPost, "/users/session", "", map[string]any{
		"username": username,
		"password": "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sign in %s: %d %s", username, w.Code, w.Body.String())
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no token in %v", body)
	}
	return token
}

func TestAPI_SignUpAndSession(t *testing.T) {
	a := newAPI(t)

	doc := a.signUp(t, "alice")
	if _, ok := doc["password"]; ok {
		t.Error("password leaked in response")
	}
	if doc["status"] != "active" {
		t.Errorf("status = %v", doc["status"])
	}

	w, body := a.do(t, http.MethodPost, "/users/session", "", map[string]any{
		"username": "alice",
		"password": "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("session: %d %s", w.Code, w.Body.String())
	}
	if body["token"] == "" || body["expires_at"] == nil {
		t.Errorf("session body = %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user == nil || user["username"] != "alice" {
		t.Errorf("user in session body = %v", body["user"])
	}

	w, _ = a.do(t, http.MethodPost, "/users/session", "", map[string]any{
		"username": "alice",
		"password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials = %d", w.Code)
	}
}

func TestAPI_DuplicateUsernameConflicts(t *testing.T) {
	a := newAPI(t)
	a.signUp(t, "alice")

	w, _ := a.do(t, http.MethodPost, "/users", "", map[string]any{
		"username": "alice",
		"password": "secret123",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate sign up = %d", w.Code)
	}
}

func TestAPI_UpdateRequiresAuth(t *testing.T) {
	a := newAPI(t)
	alice := a.signUp(t, "alice")
	a.signUp(t, "bob")
	aliceID := alice["id"].(string)

	// Anonymous caller gets 401.
	w, _ := a.do(t, http.MethodPatch, "/users/"+aliceID, "", map[string]any{"sex": "female"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous update = %d", w.Code)
	}

	// A different signed-in user gets 403.
	w, _ = a.do(t, http.MethodPatch, "/users/"+aliceID, a.signIn(t, "bob"), map[string]any{"sex": "female"})
	if w.Code != http.StatusForbidden {
		t.Errorf("stranger update = %d", w.Code)
	}

	// The owner succeeds.
	w, body := a.do(t, http.MethodPatch, "/users/"+aliceID, a.signIn(t, "alice"), map[string]any{"sex": "female"})
	if w.Code != http.StatusOK {
		t.Fatalf("owner update = %d %s", w.Code, w.Body.String())
	}
	if body["sex"] != "female" {
		t.Errorf("sex = %v", body["sex"])
	}
}

func TestAPI_ValidationFaultsAre422(t *testing.T) {
	a := newAPI(t)

	w, body := a.do(t, http.MethodPost, "/users", "", map[string]any{
		"username": "alice",
		"password": "short",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short password = %d", w.Code)
	}
	if body["error"] == nil {
		t.Errorf("missing error envelope: %v", body)
	}
}

func TestAPI_GetMissingIs404(t *testing.T) {
	a := newAPI(t)
	w, _ := a.do(t, http.MethodGet, "/users/ghost", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record = %d", w.Code)
	}
}

func TestAPI_AuthorizationCodeIsCreateOnly(t *testing.T) {
	a := newAPI(t)
	a.codes.WithCodes("4321")

	w, body := a.do(t, http.MethodPost, "/authorization_codes", "", map[string]any{
		"email": "bob@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create code = %d %s", w.Code, w.Body.String())
	}
	if body["value"] != "4321" {
		t.Errorf("value = %v", body["value"])
	}

	// No read surface is mounted for codes.
	w, _ = a.do(t, http.MethodGet, "/authorization_codes", "", nil)
	if w.Code == http.StatusOK {
		t.Error("codes must not be listable")
	}
}

func TestAPI_RelatedEndpoint(t *testing.T) {
	a := newAPI(t)
	alice := a.signUp(t, "alice")
	token := a.signIn(t, "alice")

	w, _ := a.do(t, http.MethodGet, "/users/"+alice["id"].(string)+"/favorites", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("related = %d %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(strings.TrimSpace(w.Body.String()), "[") {
		t.Errorf("related must return an array, got %s", w.Body.String())
	}
}

func TestAPI_InvalidTokenRejected(t *testing.T) {
	a := newAPI(t)
	w, _ := a.do(t, http.MethodGet, "/users", "not-a-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token = %d", w.Code)
	}
}

func TestAPI_MalformedJSONRejected(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed body = %d", w.Code)
	}
}

func TestAPI_Healthz(t *testing.T) {
	a := newAPI(t)
	w, body := a.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", w.Code, body)
	}
}

func TestAPI_Upload(t *testing.T) {
	a := newAPI(t)
	a.signUp(t, "alice")
	token := a.signIn(t, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "avatar.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write([]byte("png-bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	url, _ := body["url"].(string)
	if !strings.HasPrefix(url, "http://localhost:9080/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q", url)
	}

	// Anonymous uploads are refused.
	req = httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader(""))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous upload = %d", w.Code)
	}
}
