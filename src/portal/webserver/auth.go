package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portalkids/portal-api/src/portal/data"
	"golang.org/x/crypto/bcrypt"
)

type Auth struct {
	students StudentStore
	sessions SessionStore
	secret   []byte
}

func NewAuth(students StudentStore, sessions SessionStore, secret []byte) Auth {
	return Auth{students: students, sessions: sessions, secret: secret}
}

func (a Auth) Login(c *gin.Context) {
	var req struct {
		Slug     string `json:"slug"     binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	student, err := a.students.Get(req.Slug)
	if errors.Is(err, data.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "usuario o contraseña incorrectos"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "usuario o contraseña incorrectos"})
		return
	}

	token, jti, err := issueJWT(student.Slug, student.Admin, a.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if a.sessions != nil {
		if err := a.sessions.Save(c, jti, student.Slug, sessionTTL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "slug": student.Slug, "admin": student.Admin})
}

func (a Auth) Logout(c *gin.Context) {
	if a.sessions != nil {
		if jti := c.GetString("jti"); jti != "" {
			_ = a.sessions.Delete(c, jti)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
