package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Repository binds a logical repository key (a role name or "default") to a
// concrete GitHub repository.
type Repository struct {
	APIBase    string
	Repository string // owner/name
	Branch     string
	Token      string
}

type Config struct {
	MySQLDSN  string
	RedisURL  string
	JWTSecret string
	Port      string

	// Repos maps a lower-cased role key (or "default") to its repository.
	Repos         map[string]Repository
	GitHubTimeout time.Duration

	ScriptInterpreter string
	ScriptTimeout     time.Duration

	LLMProvider string
	LLMModel    string
	OpenAIKey   string
	ClaudeKey   string

	AdminPassword string
	AllowOrigins  []string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func getseconds(key string, def int) time.Duration {
	n, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func Load() Config {
	return Config{
		MySQLDSN:          getenv("MYSQL_DSN", "portal:portal@tcp(127.0.0.1:3306)/portal?parseTime=true"),
		RedisURL:          getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		JWTSecret:         getenv("JWT_SECRET", ""),
		Port:              getenv("PORT", "8080"),
		Repos:             loadRepos(),
		GitHubTimeout:     getseconds("GITHUB_TIMEOUT", 10),
		ScriptInterpreter: getenv("SCRIPT_INTERPRETER", "python3"),
		ScriptTimeout:     getseconds("SCRIPT_TIMEOUT", 30),
		LLMProvider:       getenv("LLM_PROVIDER", "openai"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		ClaudeKey:         os.Getenv("ANTHROPIC_API_KEY"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AllowOrigins:      strings.Split(getenv("ALLOW_ORIGINS", "http://localhost:3000"), ","),
	}
}

// loadRepos scans the environment for GITHUB_<KEY>_REPO entries and builds
// the role → repository map. GITHUB_REPO (no key) becomes the "default"
// entry; GITHUB_TOKEN is the shared fallback token.
func loadRepos() map[string]Repository {
	apiBase := getenv("GITHUB_API_URL", "https://api.github.com")
	sharedToken := os.Getenv("GITHUB_TOKEN")

	repos := make(map[string]Repository)
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		repos["default"] = Repository{
			APIBase:    apiBase,
			Repository: strings.TrimSpace(v),
			Branch:     strings.TrimSpace(getenv("GITHUB_BRANCH", "main")),
			Token:      sharedToken,
		}
	}

	for _, entry := range os.Environ() {
		name, _, ok := strings.Cut(entry, "=")
		if !ok || name == "GITHUB_REPO" || !strings.HasPrefix(name, "GITHUB_") || !strings.HasSuffix(name, "_REPO") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, "GITHUB_"), "_REPO")
		if key == "" {
			continue
		}
		lower := strings.ToLower(key)
		token := os.Getenv("GITHUB_" + key + "_TOKEN")
		if token == "" {
			token = sharedToken
		}
		branch := strings.TrimSpace(os.Getenv("GITHUB_" + key + "_BRANCH"))
		if branch == "" {
			branch = "main"
		}
		repos[lower] = Repository{
			APIBase:    apiBase,
			Repository: strings.TrimSpace(os.Getenv(name)),
			Branch:     branch,
			Token:      token,
		}
	}

	if len(repos) == 0 {
		log.Printf("config: no GitHub repositories configured; verification will fail until GITHUB_REPO is set")
	}
	return repos
}
