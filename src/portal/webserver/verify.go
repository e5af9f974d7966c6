package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Verify struct {
	verifier Verifier
}

func NewVerify(verifier Verifier) Verify {
	return Verify{verifier: verifier}
}

// Verify triggers one synchronous verification attempt for the logged-in
// student. The verdict is always 200; only programmer errors surface as 500
// through the recovery middleware.
func (h Verify) Verify(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid mission id"})
		return
	}
	verdict := h.verifier.Verify(c.Request.Context(), c.GetString("slug"), uint32(id))
	c.JSON(http.StatusOK, verdict)
}
