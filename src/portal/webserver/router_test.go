package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/portalkids/portal-api/src/portal/config"
	"github.com/portalkids/portal-api/src/portal/data"
	"github.com/portalkids/portal-api/src/portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- fakes ---

type memStudents struct {
	mu       sync.Mutex
	students map[string]*types.Student
}

func newMemStudents(students ...*types.Student) *memStudents {
	m := &memStudents{students: map[string]*types.Student{}}
	for _, s := range students {
		m.students[s.Slug] = s
	}
	return m
}

func (m *memStudents) Get(slug string) (*types.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.students[data.NormalizeSlug(slug)]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, data.ErrNotFound
}

func (m *memStudents) List() ([]types.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Student{}
	for _, s := range m.students {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStudents) Create(s *types.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[data.NormalizeSlug(s.Slug)] = s
	return nil
}

func (m *memStudents) Update(s *types.Student) error { return m.Create(s) }

func (m *memStudents) Delete(slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, data.NormalizeSlug(slug))
	return nil
}

type memMissions struct {
	mu       sync.Mutex
	nextID   uint32
	missions map[uint32]*types.Mission
}

func newMemMissions() *memMissions {
	return &memMissions{nextID: 1, missions: map[uint32]*types.Mission{}}
}

func (m *memMissions) Get(id uint32) (*types.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mission, ok := m.missions[id]; ok {
		copy := *mission
		return &copy, nil
	}
	return nil, data.ErrNotFound
}

func (m *memMissions) List() ([]types.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Mission{}
	for _, mission := range m.missions {
		out = append(out, *mission)
	}
	// Same ordering contract as the mysql-backed store: position, then id.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memMissions) Create(mission *types.Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mission.ID = m.nextID
	m.nextID++
	m.missions[mission.ID] = mission
	return nil
}

func (m *memMissions) Update(mission *types.Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missions[mission.ID] = mission
	return nil
}

func (m *memMissions) Delete(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.missions, id)
	return nil
}

type memCompletions map[string]map[uint32]struct{}

func (m memCompletions) Set(slug string) (map[uint32]struct{}, error) {
	if set, ok := m[slug]; ok {
		return set, nil
	}
	return map[uint32]struct{}{}, nil
}

type memSessions struct {
	mu   sync.Mutex
	jtis map[string]string
}

func newMemSessions() *memSessions { return &memSessions{jtis: map[string]string{}} }

func (m *memSessions) Save(_ context.Context, jti, slug string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jtis[jti] = slug
	return nil
}

func (m *memSessions) Active(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jtis[jti]
	return ok, nil
}

func (m *memSessions) Delete(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jtis, jti)
	return nil
}

type stubVerifier struct {
	verdict  types.Verdict
	lastSlug string
	lastID   uint32
}

func (s *stubVerifier) Verify(_ context.Context, slug string, missionID uint32) types.Verdict {
	s.lastSlug = slug
	s.lastID = missionID
	return s.verdict
}

// --- helpers ---

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func testRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	cfg := config.Config{JWTSecret: "secreto-de-prueba", AllowOrigins: []string{"http://localhost:3000"}}
	return New(cfg, deps)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine, slug, password string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/auth/login", "", gin.H{"slug": slug, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func baseDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Students: newMemStudents(
			&types.Student{Slug: "ana", Role: "Ventas", PasswordHash: hash(t, "orbita")},
			&types.Student{Slug: "admin", Admin: true, PasswordHash: hash(t, "mando")},
		),
		Missions:    newMemMissions(),
		Completions: memCompletions{},
		Verifier:    &stubVerifier{verdict: types.Pass()},
		Sessions:    newMemSessions(),
	}
}

// --- tests ---

func TestLoginSuccess(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	token := login(t, r, "ana", "orbita")
	assert.NotEmpty(t, token)
}

func TestLoginNormalizesSlug(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	token := login(t, r, "  ANA ", "orbita")
	assert.NotEmpty(t, token)
}

func TestLoginWrongPassword(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	w := doJSON(t, r, http.MethodPost, "/v1/auth/login", "", gin.H{"slug": "ana", "password": "mala"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMissionsRequireAuth(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	w := doJSON(t, r, http.MethodGet, "/v1/missions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	token := login(t, r, "ana", "orbita")

	w := doJSON(t, r, http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/missions", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyRouteReturnsVerdict(t *testing.T) {
	deps := baseDeps(t)
	verifier := &stubVerifier{verdict: types.Fail("No se encontró el archivo requerido reports/m3_output.txt.")}
	deps.Verifier = verifier
	r := testRouter(t, deps)
	token := login(t, r, "ana", "orbita")

	w := doJSON(t, r, http.MethodPost, "/v1/missions/3/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var verdict types.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.False(t, verdict.Verified)
	assert.Len(t, verdict.Feedback, 1)
	assert.Equal(t, "ana", verifier.lastSlug)
	assert.Equal(t, uint32(3), verifier.lastID)
}

func TestVerifyRouteRejectsBadID(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	token := login(t, r, "ana", "orbita")
	w := doJSON(t, r, http.MethodPost, "/v1/missions/nope/verify", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissionsListFiltersAndFlags(t *testing.T) {
	deps := baseDeps(t)
	// Created out of board order on purpose; the store contract is that
	// List returns position order regardless of insertion order.
	m2 := &types.Mission{Title: "m2", Position: 2, Roles: "Ventas", Contract: "{}"}
	m1 := &types.Mission{Title: "m1", Position: 1, Roles: "Ventas", Contract: "{}"}
	require.NoError(t, deps.Missions.Create(m2))
	require.NoError(t, deps.Missions.Create(m1))
	require.NoError(t, deps.Missions.Create(&types.Mission{Title: "ops", Position: 3, Roles: "Operaciones", Contract: "{}"}))
	deps.Completions = memCompletions{"ana": {m1.ID: {}}}
	r := testRouter(t, deps)
	token := login(t, r, "ana", "orbita")

	w := doJSON(t, r, http.MethodGet, "/v1/missions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Missions []missionView `json:"missions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Missions, 2, "missions for other roles are hidden")
	assert.Equal(t, "m1", resp.Missions[0].Title)
	assert.Equal(t, "m2", resp.Missions[1].Title)
	assert.True(t, resp.Missions[0].Completed)
	assert.True(t, resp.Missions[0].Unlocked)
	assert.False(t, resp.Missions[1].Completed)
	assert.True(t, resp.Missions[1].Unlocked)
}

func TestAdminRequiresAdminClaim(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	token := login(t, r, "ana", "orbita")
	w := doJSON(t, r, http.MethodGet, "/v1/admin/students", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminCreateMissionValidatesContract(t *testing.T) {
	r := testRouter(t, baseDeps(t))
	token := login(t, r, "admin", "mando")

	invalid := gin.H{
		"title":    "Misión 1",
		"position": 1,
		"contract": gin.H{
			"verification_type": "evidence",
			"source":            gin.H{"base_path": "students/sin-token"},
			"deliverables":      []gin.H{{"type": "file_exists", "path": "a.txt"}},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/v1/admin/missions", token, invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "{slug}")

	valid := gin.H{
		"title":    "Misión 1",
		"position": 1,
		"roles":    "Ventas",
		"contract": gin.H{
			"verification_type": "evidence",
			"source":            gin.H{"base_path": "students/{slug}"},
			"deliverables":      []gin.H{{"type": "file_exists", "path": "a.txt"}},
		},
	}
	w = doJSON(t, r, http.MethodPost, "/v1/admin/missions", token, valid)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAdminMissionDescriptionIsSanitized(t *testing.T) {
	deps := baseDeps(t)
	r := testRouter(t, deps)
	token := login(t, r, "admin", "mando")

	req := gin.H{
		"title":            "Misión",
		"position":         1,
		"description_html": `<p>hola</p><script>alert(1)</script>`,
		"contract": gin.H{
			"verification_type": "evidence",
			"source":            gin.H{"base_path": "students/{slug}"},
			"deliverables":      []gin.H{{"type": "file_exists", "path": "a.txt"}},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/v1/admin/missions", token, req)
	require.Equal(t, http.StatusCreated, w.Code)

	mission, err := deps.Missions.Get(1)
	require.NoError(t, err)
	assert.Contains(t, mission.DescriptionHTML, "<p>hola</p>")
	assert.NotContains(t, mission.DescriptionHTML, "<script>")
}

func TestAdminCreateStudentHashesPassword(t *testing.T) {
	deps := baseDeps(t)
	r := testRouter(t, deps)
	token := login(t, r, "admin", "mando")

	w := doJSON(t, r, http.MethodPost, "/v1/admin/students", token, gin.H{
		"slug": "nuevo", "role": "Ventas", "password": "halo",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	student, err := deps.Students.Get("nuevo")
	require.NoError(t, err)
	assert.NotEqual(t, "halo", student.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte("halo")))
}
