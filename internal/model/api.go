package model

// OpenSessionRequest is the request to open or resume a chat session.
type OpenSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// OpenSessionResponse returns the session id and its recent history.
type OpenSessionResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// SendMessageRequest is an inbound user message.
type SendMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	UserName  string `json:"user_name,omitempty"`
	UserPhone string `json:"user_phone,omitempty"`
}

// SendMessageResponse is the outcome of handling an inbound message.
type SendMessageResponse struct {
	UserMessage *Message      `json:"user_message"`
	AIMessage   *Message      `json:"ai_message,omitempty"`
	Status      SessionStatus `json:"status"`
	NeedHuman   bool          `json:"need_human"`
}

// HistoryResponse is a page of a session's message history, oldest first.
type HistoryResponse struct {
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
}

// AgentReplyRequest is a human agent's reply into a session.
type AgentReplyRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SessionListResponse is a page of session summaries for the agent console.
type SessionListResponse struct {
	Sessions []SessionSnapshot `json:"sessions"`
	Total    int               `json:"total"`
}

// SweepResponse reports the sessions reclaimed by one reclaimer pass.
type SweepResponse struct {
	Reclaimed []string `json:"reclaimed"`
	Count     int      `json:"count"`
}
