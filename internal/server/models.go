package server

// HTTPError is the uniform error envelope produced by the error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type IngestRequest struct {
	Filename  string `json:"filename"`
	SessionID string `json:"session_id,omitempty"`
}

type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

type UploadResponse struct {
	Filename string `json:"filename"`
}

type TaskResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type JobInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Cron string `json:"cron"`
	Next string `json:"next,omitempty"`
}

// LogEntry merges runs and reports into one dashboard feed item.
type LogEntry struct {
	Kind      string `json:"kind"`
	JobType   string `json:"job_type"`
	Status    string `json:"status,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp"`
}

// InsightPoint is one day's report count for a kind.
type InsightPoint struct {
	Day   string `json:"day"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}
