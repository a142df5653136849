package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"luminar-api/config"
	"luminar-api/models"
	"luminar-api/services"
	"luminar-api/testutil"
)

const (
	adminEmail = "ops@luminar.gg"
	address    = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
)

type memStore struct{ keys []string }

func (m *memStore) PutObject(_ context.Context, key, _ string, _ []byte, _ map[string]string) (string, error) {
	m.keys = append(m.keys, key)
	return "https://packs.luminar.gg/" + key, nil
}

// slowPayout never learns the outcome of a transfer
type slowPayout struct{ services.DevPayout }

func (slowPayout) Submit(ctx context.Context, _ *services.SignedTransfer) error {
	<-ctx.Done()
	return ctx.Err()
}

type testApp struct {
	app   *fiber.App
	db    *gorm.DB
	store *memStore
}

func newTestApp(t *testing.T, mutate func(*config.Config, *Deps)) *testApp {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Auth:   config.AuthConfig{AdminEmails: []string{"OPS@luminar.gg"}},
	}
	identity := services.DevIdentityProvider{}
	store := &memStore{}
	deps := Deps{
		Identity:      identity,
		Challenge:     services.DevChallengeVerifier{},
		Users:         services.NewUserService(db, identity),
		Clues:         services.NewClueService(db, 10*time.Second),
		Qualification: services.NewQualificationService(db),
		Claims:        services.NewClaimService(db, services.DevPayout{}, time.Second),
		Chapters:      services.NewChapterService(db, store),
		Progress:      services.NewProgressService(db),
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	app := NewApp(cfg)
	SetupRoutes(app, cfg, deps)
	return &testApp{app: app, db: db, store: store}
}

type call struct {
	method, path, body string
	user, turnstile    string
}

func (a *testApp) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("Authorization", "Bearer "+c.user)
	}
	if c.turnstile != "" {
		req.Header.Set("X-Turnstile-Token", c.turnstile)
	}

	resp, err := a.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testApp) userID(t *testing.T, subject string) string {
	t.Helper()
	var u models.User
	require.NoError(t, a.db.Where("external_id = ?", subject).Take(&u).Error)
	return u.ID
}

func TestHealthAndNotFound(t *testing.T) {
	a := newTestApp(t, nil)

	status, body := a.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])

	status, body = a.do(t, call{method: http.MethodGet, path: "/v1/nope"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, map[string]any{"error": "not_found", "message": "Endpoint not found"}, body)
}

func TestComingSoon(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config, _ *Deps) { cfg.ComingSoon = true })

	for _, path := range []string{"/v1/chapters/1/slots", "/v1/admin/chapters", "/v1/anything"} {
		status, body := a.do(t, call{method: http.MethodGet, path: path, user: "ada@example.com"})
		assert.Equal(t, http.StatusServiceUnavailable, status, path)
		assert.Equal(t, "service_unavailable", body["error"])
		assert.Equal(t, true, body["coming_soon"])
	}

	status, _ := a.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, status)
}

func TestSubmitClue(t *testing.T) {
	a := newTestApp(t, nil)
	chapter := testutil.CreateChapter(t, a.db, testutil.ChapterOpts{})
	path := "/v1/clues/" + itoa(int(chapter.Clues[0].ID)) + "/submit"

	status, body := a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"blue whale"}`})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"blue whale"}`, user: "ada@example.com"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":`, user: "ada@example.com", turnstile: "t1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_json", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"orca"}`, user: "ada@example.com", turnstile: "t2"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_answer", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"blue whale"}`, user: "ada@example.com", turnstile: "t3"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "cooldown", body["error"])
	assert.Greater(t, body["retry_after"], float64(0))

	status, body = a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"Blue Whale!"}`, user: "bob@example.com", turnstile: "t4"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fragment-1", body["fragment"])
	assert.NotEmpty(t, body["proof_id"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"blue whale"}`, user: "bob@example.com", turnstile: "t5"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_solved", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: "/v1/clues/999/submit", body: `{"answer":"x"}`, user: "bob@example.com", turnstile: "t6"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "clue_not_found", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: "/v1/clues/abc/submit", body: `{"answer":"x"}`, user: "bob@example.com", turnstile: "t7"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["error"])
}

func TestSubmitClue_ReplayedChallengeToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := newTestApp(t, func(_ *config.Config, d *Deps) {
		d.Replay = services.NewRedisReplayGuard(rdb, time.Minute)
	})
	chapter := testutil.CreateChapter(t, a.db, testutil.ChapterOpts{})
	path := "/v1/clues/" + itoa(int(chapter.Clues[0].ID)) + "/submit"

	status, _ := a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"blue whale"}`, user: "ada@example.com", turnstile: "same"})
	assert.Equal(t, http.StatusOK, status)

	path = "/v1/clues/" + itoa(int(chapter.Clues[1].ID)) + "/submit"
	status, body := a.do(t, call{method: http.MethodPost, path: path, body: `{"answer":"north star"}`, user: "ada@example.com", turnstile: "same"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])
}

func TestQualifyAndSlots(t *testing.T) {
	a := newTestApp(t, nil)
	chapter := testutil.CreateChapter(t, a.db, testutil.ChapterOpts{})
	base := "/v1/chapters/" + itoa(int(chapter.ID))

	status, body := a.do(t, call{method: http.MethodPost, path: base + "/qualify", user: "ada@example.com"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"qualified": false, "reason": "not_enough_proofs"}, body)

	testutil.AddProofs(t, a.db, chapter, a.userID(t, "ada@example.com"))

	status, body = a.do(t, call{method: http.MethodPost, path: base + "/qualify", user: "ada@example.com"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["qualified"])
	assert.Equal(t, float64(1), body["rank"])

	status, body = a.do(t, call{method: http.MethodGet, path: base + "/slots"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"remaining": float64(9)}, body)

	status, body = a.do(t, call{method: http.MethodGet, path: "/v1/chapters/404/slots"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "chapter_not_found", body["error"])
}

func TestClaim(t *testing.T) {
	a := newTestApp(t, nil)
	chapter := testutil.CreateChapter(t, a.db, testutil.ChapterOpts{Code: "Lantern"})
	path := "/v1/chapters/" + itoa(int(chapter.ID)) + "/claim"

	status, _ := a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com", body: `{"code":"lantern"}`})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com",
		body: `{"code":"lantern","to":"` + address + `"}`})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_winner", body["error"])

	testutil.AddWinner(t, a.db, chapter.ID, a.userID(t, "ada@example.com"), 1)

	status, body = a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com",
		body: `{"code":"nope","to":"` + address + `"}`})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_code", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com",
		body: `{"code":"lantern","to":"` + address + `"}`})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paid", body["status"])
	assert.NotEmpty(t, body["tx_sig"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com",
		body: `{"code":"lantern","to":"` + address + `"}`})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_claimed", body["error"])
}

func TestClaim_UnknownOutcomeIsAccepted(t *testing.T) {
	a := newTestApp(t, func(_ *config.Config, d *Deps) {
		d.Claims.Payout = slowPayout{}
		d.Claims.ConfirmTimeout = 50 * time.Millisecond
	})
	chapter := testutil.CreateChapter(t, a.db, testutil.ChapterOpts{Code: "Lantern"})
	path := "/v1/chapters/" + itoa(int(chapter.ID)) + "/claim"

	// create the user, then make them a winner
	a.do(t, call{method: http.MethodGet, path: "/v1/user/progress", user: "ada@example.com"})
	testutil.AddWinner(t, a.db, chapter.ID, a.userID(t, "ada@example.com"), 1)

	status, body := a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com",
		body: `{"code":"lantern","to":"` + address + `"}`})
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "pending", body["status"])

	status, body = a.do(t, call{method: http.MethodPost, path: path, user: "ada@example.com",
		body: `{"code":"lantern","to":"` + address + `"}`})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "claim_pending", body["error"])
}

func TestUserProgress(t *testing.T) {
	a := newTestApp(t, nil)

	status, body := a.do(t, call{method: http.MethodGet, path: "/v1/user/progress", user: "ada@example.com"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["proofs"])
	assert.Equal(t, []any{}, body["qualifications"])
}

func TestAdminRoutes(t *testing.T) {
	a := newTestApp(t, nil)
	chapter := testutil.CreateChapter(t, a.db, testutil.ChapterOpts{Title: "The Lantern"})
	id := itoa(int(chapter.ID))

	status, body := a.do(t, call{method: http.MethodGet, path: "/v1/admin/chapters", user: "ada@example.com"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, body = a.do(t, call{method: http.MethodGet, path: "/v1/admin/chapters", user: adminEmail})
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body["chapters"], 1)

	status, body = a.do(t, call{method: http.MethodGet, path: "/v1/admin/chapters/" + id + "/winners", user: adminEmail})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["winners"])

	status, body = a.do(t, call{method: http.MethodPost, path: "/v1/admin/chapters/" + id + "/end", user: adminEmail})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://packs.luminar.gg/packs/chapter-"+id+"-the-lantern.json", body["chapter_pack_url"])
	assert.Equal(t, float64(0), body["winners_count"])
	assert.Equal(t, float64(0), body["total_payout"])

	status, body = a.do(t, call{method: http.MethodPost, path: "/v1/admin/chapters/" + id + "/end", user: adminEmail})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "chapter_already_ended", body["error"])

	status, body = a.do(t, call{method: http.MethodPost, path: "/v1/admin/chapters/999/end", user: adminEmail})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "chapter_not_found", body["error"])
}
