// Minimal end‑to‑end integration test for the portal API.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	baseURL   = getenv("API_URL", "http://localhost:8080/v1")
	redisURL  = getenv("REDIS_URL", "redis://localhost:6379/0")
	adminSlug = getenv("ADMIN_SLUG", "admin")
	adminPass = getenv("ADMIN_PASSWORD", "")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	if adminPass == "" {
		log.Fatal("ADMIN_PASSWORD is required")
	}

	ctx := context.Background()
	rdb := mustRedis()
	defer rdb.Close()

	adminToken := login(adminSlug, adminPass)

	slug := "smoke-" + strings.Split(uuid.NewString(), "-")[0]
	pass := uuid.NewString()
	createStudent(adminToken, slug, pass)
	missionID := createMission(adminToken, slug)

	token := login(slug, pass)
	checkSession(ctx, rdb, token)
	checkMissions(token, missionID)
	runVerify(token, missionID)

	cleanup(adminToken, slug, missionID)
	fmt.Println("✓ all endpoints passed")
}

// ----------------------------- auth

func login(slug, password string) string {
	var resp struct{ Token string }
	doJSON("POST", "/auth/login", map[string]any{
		"slug":     slug,
		"password": password,
	}, &resp, http.StatusOK)
	if resp.Token == "" {
		log.Fatal("login: empty token")
	}
	return resp.Token
}

// checkSession confirms the login left a revocable session behind. The jti
// lives in the JWT payload, which is plain base64 JSON.
func checkSession(ctx context.Context, rdb *redis.Client, token string) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		log.Fatal("session: malformed token")
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		log.Fatalf("session: decode payload: %v", err)
	}
	var claims struct {
		JTI string `json:"jti"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.JTI == "" {
		log.Fatal("session: no jti claim")
	}
	n, err := rdb.Exists(ctx, "session:"+claims.JTI).Result()
	if err != nil {
		log.Fatalf("redis exists: %v", err)
	}
	if n == 0 {
		log.Fatal("session: key not found in redis")
	}
}

// ----------------------------- admin

func createStudent(tok, slug, password string) {
	doAuth(tok, "POST", "/admin/students", map[string]any{
		"slug":     slug,
		"name":     "Smoke Test",
		"role":     "Ventas",
		"password": password,
	}, nil, http.StatusCreated)
}

func createMission(tok, slug string) uint64 {
	var resp struct{ ID uint64 }
	doAuth(tok, "POST", "/admin/missions", map[string]any{
		"title":    "smoke mission " + slug,
		"position": 9999,
		"roles":    "Ventas",
		"contract": map[string]any{
			"verification_type": "evidence",
			"source":            map[string]any{"base_path": "students/{slug}"},
			"deliverables": []map[string]any{
				{"type": "file_exists", "path": "smoke/never-there.txt"},
			},
		},
	}, &resp, http.StatusCreated)
	if resp.ID == 0 {
		log.Fatal("missions: empty id")
	}
	return resp.ID
}

func cleanup(tok, slug string, missionID uint64) {
	doAuth(tok, "DELETE", fmt.Sprintf("/admin/missions/%d", missionID), nil, nil, http.StatusOK)
	doAuth(tok, "DELETE", "/admin/students/"+slug, nil, nil, http.StatusOK)
}

// ----------------------------- student flow

func checkMissions(tok string, want uint64) {
	var resp struct {
		Missions []struct{ ID uint64 }
	}
	doAuth(tok, "GET", "/missions", nil, &resp, http.StatusOK)
	for _, m := range resp.Missions {
		if m.ID == want {
			return
		}
	}
	log.Fatal("missions: created mission not visible to student")
}

// runVerify exercises the full engine path; the deliverable never exists, so
// a well-formed failed verdict is the pass condition.
func runVerify(tok string, missionID uint64) {
	var verdict struct {
		Verified bool
		Feedback []string
	}
	doAuth(tok, "POST", fmt.Sprintf("/missions/%d/verify", missionID), nil, &verdict, http.StatusOK)
	if verdict.Verified {
		log.Fatal("verify: expected a failed verdict for a missing deliverable")
	}
	if len(verdict.Feedback) == 0 {
		log.Fatal("verify: failed verdict carries no feedback")
	}
}

// ----------------------------- helpers

func mustRedis() *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	return redis.NewClient(opt)
}

func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(seg)
}

func doAuth(token, method, path string, body, out any, want int) {
	doReq(method, path, token, body, out, want)
}

func doJSON(method, path string, body, out any, want int) {
	doReq(method, path, "", body, out, want)
}

func doReq(method, path, token string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
