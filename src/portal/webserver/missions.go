package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portalkids/portal-api/src/portal/data"
	"github.com/portalkids/portal-api/src/portal/progress"
)

type Missions struct {
	students    StudentStore
	missions    MissionStore
	completions CompletionStore
}

func NewMissions(students StudentStore, missions MissionStore, completions CompletionStore) Missions {
	return Missions{students: students, missions: missions, completions: completions}
}

type missionView struct {
	ID              uint32 `json:"id"`
	Title           string `json:"title"`
	DescriptionHTML string `json:"description_html"`
	Position        uint32 `json:"position"`
	Completed       bool   `json:"completed"`
	Unlocked        bool   `json:"unlocked"`
}

// List returns the student's role-filtered mission board with completion and
// unlock flags.
func (h Missions) List(c *gin.Context) {
	slug := c.GetString("slug")

	student, err := h.students.Get(slug)
	if errors.Is(err, data.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"err": "student not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	all, err := h.missions.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	completed, err := h.completions.Set(slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	filtered := progress.FilterForRole(all, student.Role)
	unlocked := progress.UnlockedSet(filtered, completed)

	views := make([]missionView, 0, len(filtered))
	for _, m := range filtered {
		_, done := completed[m.ID]
		_, open := unlocked[m.ID]
		views = append(views, missionView{
			ID:              m.ID,
			Title:           m.Title,
			DescriptionHTML: m.DescriptionHTML,
			Position:        m.Position,
			Completed:       done,
			Unlocked:        open,
		})
	}
	c.JSON(http.StatusOK, gin.H{"missions": views})
}
