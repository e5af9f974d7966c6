package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/portalkids/portal-api/src/ai/core"
	_ "github.com/portalkids/portal-api/src/ai/providers"
	"github.com/portalkids/portal-api/src/portal/config"
	"github.com/portalkids/portal-api/src/portal/data"
	"github.com/portalkids/portal-api/src/portal/llm"
	"github.com/portalkids/portal-api/src/portal/script"
	"github.com/portalkids/portal-api/src/portal/source"
	"github.com/portalkids/portal-api/src/portal/types"
	"github.com/portalkids/portal-api/src/portal/verify"
	"github.com/portalkids/portal-api/src/portal/webserver"
)

var allModels = []interface{}{
	&types.Student{}, &types.Mission{}, &types.Completion{},
}

func migrate(db *gorm.DB) {
	if err := db.AutoMigrate(allModels...); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

// seedAdmin creates the bootstrap administrator when the students table is
// empty, so a fresh deployment can log in and load missions.
func seedAdmin(db *gorm.DB, password string) {
	var count int64
	if err := db.Model(&types.Student{}).Count(&count).Error; err != nil || count > 0 {
		return
	}
	if password == "" {
		log.Printf("students table empty and ADMIN_PASSWORD unset; skipping admin seed")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	admin := types.Student{Slug: "admin", Name: "Administrador", PasswordHash: string(hash), Admin: true}
	if err := db.Create(&admin).Error; err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	log.Printf("seeded admin student")
}

func newLLMEvaluator(cfg config.Config) *llm.Evaluator {
	client, err := core.NewClient(core.FactoryConfig{
		Provider:     cfg.LLMProvider,
		Model:        cfg.LLMModel,
		SystemPrompt: llm.SystemPrompt,
		OpenAIKey:    cfg.OpenAIKey,
		ClaudeKey:    cfg.ClaudeKey,
	})
	if err != nil {
		log.Printf("llm: %v; llm_evaluation missions will fail until configured", err)
		client = nil
	}
	return llm.New(client, core.Options{Model: cfg.LLMModel})
}

func main() {
	cfg := config.Load()

	db := data.MustMySQL(cfg.MySQLDSN)
	migrate(db)
	seedAdmin(db, cfg.AdminPassword)

	rdb := data.MustRedis(cfg.RedisURL)

	fetcher := source.New(cfg.Repos, cfg.GitHubTimeout)
	orch := verify.NewOrchestrator(
		data.NewStudentStore(db),
		data.NewMissionStore(db),
		data.NewCompletionStore(db),
		fetcher,
		script.NewRunner(cfg.ScriptInterpreter, cfg.ScriptTimeout),
		newLLMEvaluator(cfg),
	)

	router := webserver.New(cfg, webserver.Deps{
		Students:    data.NewStudentStore(db),
		Missions:    data.NewMissionStore(db),
		Completions: data.NewCompletionStore(db),
		Verifier:    orch,
		Sessions:    data.NewSessionStore(rdb),
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()
	log.Printf("Mission Portal API listening on %s", cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
