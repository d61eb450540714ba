package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/domain"
)

// BackendHandlers serves the profile, role and audit endpoints the
// participant SDK calls over HTTP.
type BackendHandlers struct {
	Directory *app.Directory
	Registry  *app.Registry
}

func account(c *gin.Context) *app.Account {
	return c.MustGet("account").(*app.Account)
}

func (h *BackendHandlers) Profile(c *gin.Context) {
	c.JSON(http.StatusOK, account(c).Profile)
}

func (h *BackendHandlers) Tenant(c *gin.Context) {
	c.JSON(http.StatusOK, h.Directory.Tenant())
}

func (h *BackendHandlers) UserInfo(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	info, ok := h.Directory.UserInfo(email)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// ParticipantRoles maps live connection ids to backend roles. Unknown
// connections are omitted, not errors.
func (h *BackendHandlers) ParticipantRoles(c *gin.Context) {
	ids := c.QueryArray("id[]")
	out := make(map[domain.ConnectionID]string, len(ids))
	for _, raw := range ids {
		id := domain.ConnectionID(raw)
		if role, ok := h.Registry.RoleOf(id); ok {
			out[id] = role
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *BackendHandlers) LogMessage(c *gin.Context) {
	var rec domain.MessageRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad message record"})
		return
	}
	h.Directory.RecordMessage(rec)
	log.Debug().Str("module", "adapters.http").Str("conn", string(rec.Connection)).Msg("message recorded")
	c.Status(http.StatusNoContent)
}

func (h *BackendHandlers) LogSession(c *gin.Context) {
	var body struct {
		ID domain.SessionID `json:"id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad session record"})
		return
	}
	log.Debug().Str("module", "adapters.http").Str("session", string(body.ID)).Msg("session recorded")
	c.Status(http.StatusNoContent)
}

func (h *BackendHandlers) LogConnection(c *gin.Context) {
	var body struct {
		ID      domain.ConnectionID `json:"id"`
		Session domain.SessionID    `json:"session"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad connection record"})
		return
	}
	h.Directory.RecordConnection(app.ConnectionRecord{Connection: body.ID, Session: body.Session})
	log.Debug().Str("module", "adapters.http").Str("conn", string(body.ID)).Msg("connection recorded")
	c.Status(http.StatusNoContent)
}
