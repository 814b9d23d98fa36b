package rest

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the body of the health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Clients int    `json:"clients"`
}

// AlertActionResponse confirms an alert state change.
type AlertActionResponse struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}
