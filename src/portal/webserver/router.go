package webserver

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/portalkids/portal-api/src/portal/config"
	"github.com/portalkids/portal-api/src/portal/types"
)

// Store contracts consumed by the handlers. portal.go wires the gorm-backed
// implementations from src/portal/data; tests plug in-memory fakes.
type StudentStore interface {
	Get(slug string) (*types.Student, error)
	List() ([]types.Student, error)
	Create(student *types.Student) error
	Update(student *types.Student) error
	Delete(slug string) error
}

type MissionStore interface {
	Get(id uint32) (*types.Mission, error)
	List() ([]types.Mission, error)
	Create(mission *types.Mission) error
	Update(mission *types.Mission) error
	Delete(id uint32) error
}

type CompletionStore interface {
	Set(slug string) (map[uint32]struct{}, error)
}

// Verifier is the engine's sole externally observable operation.
type Verifier interface {
	Verify(ctx context.Context, slug string, missionID uint32) types.Verdict
}

type SessionStore interface {
	Save(ctx context.Context, jti, slug string, ttl time.Duration) error
	Active(ctx context.Context, jti string) (bool, error)
	Delete(ctx context.Context, jti string) error
}

type Deps struct {
	Students    StudentStore
	Missions    MissionStore
	Completions CompletionStore
	Verifier    Verifier
	Sessions    SessionStore
}

func New(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	attachRoutes(r, cfg, deps)
	return r
}

func attachRoutes(r *gin.Engine, cfg config.Config, deps Deps) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	secret := []byte(cfg.JWTSecret)
	authH := NewAuth(deps.Students, deps.Sessions, secret)
	missionH := NewMissions(deps.Students, deps.Missions, deps.Completions)
	verifyH := NewVerify(deps.Verifier)
	verifyLimiter := NewRateLimiter(10, time.Minute)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", authH.Login)

		secured := v1.Group("")
		secured.Use(JWTMiddleware(secret, deps.Sessions))
		secured.POST("/auth/logout", authH.Logout)
		secured.GET("/missions", missionH.List)
		secured.POST("/missions/:id/verify", RateLimitMiddleware(verifyLimiter), verifyH.Verify)

		admin := v1.Group("/admin")
		admin.Use(JWTMiddleware(secret, deps.Sessions), AdminMiddleware())
		{
			adminH := NewAdmin(deps.Students, deps.Missions)
			admin.GET("/students", adminH.ListStudents)
			admin.POST("/students", adminH.CreateStudent)
			admin.PUT("/students/:slug", adminH.UpdateStudent)
			admin.DELETE("/students/:slug", adminH.DeleteStudent)
			admin.GET("/missions", adminH.ListMissions)
			admin.POST("/missions", adminH.CreateMission)
			admin.PUT("/missions/:id", adminH.UpdateMission)
			admin.DELETE("/missions/:id", adminH.DeleteMission)
		}
	}
}
