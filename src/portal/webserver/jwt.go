package webserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTTL = 12 * time.Hour

func issueJWT(slug string, admin bool, secret []byte) (token, jti string, err error) {
	jti = uuid.NewString()
	claims := jwt.MapClaims{
		"slug":  slug,
		"admin": admin,
		"jti":   jti,
		"exp":   time.Now().Add(sessionTTL).Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return token, jti, err
}

func JWTMiddleware(secret []byte, sessions SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tok, err := jwt.Parse(h[7:], func(t *jwt.Token) (interface{}, error) { return secret, nil },
			jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !tok.Valid {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		jti, _ := claims["jti"].(string)
		if sessions != nil && jti != "" {
			active, err := sessions.Active(c, jti)
			if err != nil || !active {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
		}
		slug, _ := claims["slug"].(string)
		admin, _ := claims["admin"].(bool)
		c.Set("slug", slug)
		c.Set("admin", admin)
		c.Set("jti", jti)
		c.Next()
	}
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("admin") {
			c.JSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
