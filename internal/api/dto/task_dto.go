package dto

type CreateTaskRequest struct {
	Query string `json:"query" binding:"required"`
}

type ListTasksRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListTasksResponse struct {
	Tasks      []TaskDTO `json:"tasks"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type TaskDTO struct {
	TaskID string `json:"task_id"`
	Host   string `json:"host"`
	Path   string `json:"path"`
	Query  string `json:"query"`
}
