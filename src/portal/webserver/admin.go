package webserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/data"
	"github.com/portalkids/portal-api/src/portal/types"
	"golang.org/x/crypto/bcrypt"
)

type Admin struct {
	students  StudentStore
	missions  MissionStore
	sanitizer *bluemonday.Policy
}

func NewAdmin(students StudentStore, missions MissionStore) Admin {
	return Admin{students: students, missions: missions, sanitizer: bluemonday.UGCPolicy()}
}

// --- students ---

type studentReq struct {
	Slug     string `json:"slug"     binding:"required,min=2,max=64"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

func (a Admin) ListStudents(c *gin.Context) {
	students, err := a.students.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	views := make([]gin.H, 0, len(students))
	for _, s := range students {
		views = append(views, gin.H{"slug": s.Slug, "name": s.Name, "role": s.Role, "admin": s.Admin})
	}
	c.JSON(http.StatusOK, gin.H{"students": views})
}

func (a Admin) CreateStudent(c *gin.Context) {
	var req studentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"err": "password is required"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	student := types.Student{
		Slug:         req.Slug,
		Name:         req.Name,
		Role:         req.Role,
		PasswordHash: string(hash),
		Admin:        req.Admin,
	}
	if err := a.students.Create(&student); err != nil {
		c.JSON(http.StatusConflict, gin.H{"err": err.Error()})
		return
	}
	log.Printf("admin %s created student %s", c.GetString("slug"), student.Slug)
	c.JSON(http.StatusCreated, gin.H{"slug": student.Slug})
}

func (a Admin) UpdateStudent(c *gin.Context) {
	student, err := a.students.Get(c.Param("slug"))
	if errors.Is(err, data.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"err": "student not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	var req studentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	student.Name = req.Name
	student.Role = req.Role
	student.Admin = req.Admin
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
		student.PasswordHash = string(hash)
	}
	if err := a.students.Update(student); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a Admin) DeleteStudent(c *gin.Context) {
	if err := a.students.Delete(c.Param("slug")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- missions ---

type missionReq struct {
	Title           string          `json:"title" binding:"required"`
	DescriptionHTML string          `json:"description_html"`
	Position        uint32          `json:"position"`
	Roles           string          `json:"roles"`
	Contract        json.RawMessage `json:"contract" binding:"required"`
}

func (a Admin) ListMissions(c *gin.Context) {
	missions, err := a.missions.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": missions})
}

// CreateMission validates the contract at write time; an invalid contract is
// rejected here, never discovered during a verification run.
func (a Admin) CreateMission(c *gin.Context) {
	var req missionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if _, err := contract.Parse(req.Contract); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	mission := types.Mission{
		Title:           req.Title,
		DescriptionHTML: a.sanitizer.Sanitize(req.DescriptionHTML),
		Position:        req.Position,
		Roles:           req.Roles,
		Contract:        string(req.Contract),
	}
	if err := a.missions.Create(&mission); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	log.Printf("admin %s created mission %d (%s)", c.GetString("slug"), mission.ID, mission.Title)
	c.JSON(http.StatusCreated, gin.H{"id": mission.ID})
}

func (a Admin) UpdateMission(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid mission id"})
		return
	}
	mission, err := a.missions.Get(uint32(id))
	if errors.Is(err, data.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"err": "mission not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	var req missionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if _, err := contract.Parse(req.Contract); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	mission.Title = req.Title
	mission.DescriptionHTML = a.sanitizer.Sanitize(req.DescriptionHTML)
	mission.Position = req.Position
	mission.Roles = req.Roles
	mission.Contract = string(req.Contract)
	if err := a.missions.Update(mission); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a Admin) DeleteMission(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid mission id"})
		return
	}
	if err := a.missions.Delete(uint32(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
