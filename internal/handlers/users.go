package handlers

import (
	"net/http"

	"task-assign/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetUsers lists users; unlike tasks there is no default limit.
func (h *UserHandler) GetUsers(c *gin.Context) {
	params, err := parseListParams(c, 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if params.count {
		total, err := h.userService.CountUsers(c.Request.Context(), params.query)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		respond(c, http.StatusOK, "OK", total)
		return
	}

	users, err := h.userService.ListUsers(c.Request.Context(), params.query)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	data, err := params.fields.apply(users)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", data)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var input services.UserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Created", user)
}

func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	var input services.UserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", user)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, err := h.userService.DeleteUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Deleted", user)
}
