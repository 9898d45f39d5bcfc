package dto

import "time"

type ObjectRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type SessionResponse struct {
	ID          string     `json:"id"`
	Host        string     `json:"host"`
	State       string     `json:"state"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

type CollectRequest struct {
	Kind  string     `json:"kind" binding:"required"`
	Paths []string   `json:"paths" binding:"required,min=1"`
	Root  *ObjectRef `json:"root"`
}

// PropertyRecord lists absent paths separately; their value is null.
type PropertyRecord struct {
	Object     ObjectRef      `json:"object"`
	Properties map[string]any `json:"properties"`
	Absent     []string       `json:"absent,omitempty"`
}

type CollectResponse struct {
	Records []PropertyRecord `json:"records"`
	Count   int              `json:"count"`
}

type LookupRequest struct {
	Kind     string     `json:"kind" binding:"required"`
	Property string     `json:"property" binding:"required"`
	Value    any        `json:"value" binding:"required"`
	Root     *ObjectRef `json:"root"`
}

type LookupResponse struct {
	Found  bool       `json:"found"`
	Object *ObjectRef `json:"object,omitempty"`
}
