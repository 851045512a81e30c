package api

import (
	"fmt"
)

// ProtocolVersion is bumped whenever the seed randomness rule or the canonical
// payload encoding changes.
const ProtocolVersion = "1"

type InfoResponse struct {
	Name            string   `json:"name"`
	ProtocolVersion string   `json:"protocolVersion"`
	SignatureScheme string   `json:"signatureScheme"`
	Endpoints       []string `json:"endpoints"`
}

type RegisterResponse struct {
	Status        string `json:"status"`
	AssignedOrder int    `json:"assignedOrder"`
}

type FreezeResponse struct {
	Status       string `json:"status"`
	FrozenTokens uint64 `json:"frozenTokens"`
}

type SeedResponse struct {
	Status string `json:"status"`
	Seed   uint32 `json:"seed"`
}

type VoteResponse struct {
	Status        string `json:"status"`
	SelectedIndex int    `json:"selectedIndex"`
}

type ProposeResponse struct {
	Status string `json:"status"`
}

type SubmitResponse struct {
	Status string `json:"status"`
	// The turn that was closed.
	Turn      uint16 `json:"turn"`
	BlockHash string `json:"blockHash"`
}

type ReportResponse struct {
	Status string `json:"status"`
}

// VoteView is a vote as shown by the debug endpoint, with its token shortened.
type VoteView struct {
	NodeID        string `json:"nodeId"`
	Token         string `json:"token"`
	SelectedIndex int    `json:"selectedIndex"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Response statuses.
const (
	StatusRegistered       = "registered"
	StatusOK               = "ok"
	StatusReceived         = "received"
	StatusRecorded         = "recorded"
	StatusPendingConsensus = "pending consensus"
	StatusAuthorized       = "authorized"
	StatusBroadcasted      = "broadcasted"
	StatusUnderReview      = "under review"
	StatusExpelled         = "expelled"
)

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error in request, status=%d kind=%s: %s", e.StatusCode, e.Kind, e.Message)
}
