package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apolmig/smartqr-backend/internal/services"
)

var errMissingIdentity = errors.New("missing user identity headers")

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// identityFromRequest reads the caller identity the upstream auth proxy
// injects. Authentication itself happens before requests reach this service.
func identityFromRequest(c *gin.Context) (services.UserIdentity, bool) {
	id := services.UserIdentity{
		Identifier: c.GetHeader("X-User-Id"),
		Name:       c.GetHeader("X-User-Name"),
		Email:      c.GetHeader("X-User-Email"),
	}
	if id.Identifier == "" && id.Email == "" {
		return services.UserIdentity{}, false
	}
	return id, true
}

func requireIdentity(c *gin.Context) (services.UserIdentity, bool) {
	id, ok := identityFromRequest(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "missing_identity", errMissingIdentity)
	}
	return id, ok
}

func (uh *UserHandler) GetMe(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	me, err := uh.userService.EnsureUser(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"me": me})
}
