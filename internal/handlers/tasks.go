package handlers

import (
	"net/http"

	"task-assign/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// DefaultTaskLimit caps task listings that do not pass a limit.
const DefaultTaskLimit = 100

type TaskHandler struct {
	taskService services.TaskService
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	params, err := parseListParams(c, DefaultTaskLimit)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if params.count {
		total, err := h.taskService.CountTasks(c.Request.Context(), params.query)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		respond(c, http.StatusOK, "OK", total)
		return
	}

	tasks, err := h.taskService.ListTasks(c.Request.Context(), params.query)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	data, err := params.fields.apply(tasks)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", data)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input services.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Created", task)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	task, err := h.taskService.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	var input services.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	task, err := h.taskService.DeleteTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "Deleted", task)
}
