package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

// Client calls a consensus node's HTTP API. Requests must already be signed.
type Client struct {
	baseURL string
	http    *http.Client
	log     *log.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     core.NewLogger("api", "client"),
	}
}

func (c *Client) Info() (InfoResponse, error) {
	var res InfoResponse
	err := c.get("/", &res)
	return res, err
}

func (c *Client) Status() (consensus.Status, error) {
	var res consensus.Status
	err := c.get("/status", &res)
	return res, err
}

func (c *Client) Register(req consensus.RegisterRequest) (RegisterResponse, error) {
	var res RegisterResponse
	err := c.post("/network/register", req, &res)
	return res, err
}

func (c *Client) Freeze(req consensus.FreezeRequest) (FreezeResponse, error) {
	var res FreezeResponse
	err := c.post("/tokens/freeze", req, &res)
	return res, err
}

func (c *Client) PublishSeed(req consensus.SeedRequest) (SeedResponse, error) {
	var res SeedResponse
	err := c.post("/leader/random-seed", req, &res)
	return res, err
}

func (c *Client) Vote(req consensus.VoteRequest) (VoteResponse, error) {
	var res VoteResponse
	err := c.post("/consensus/vote", req, &res)
	return res, err
}

func (c *Client) Result() (consensus.ConsensusResult, error) {
	var res consensus.ConsensusResult
	err := c.get("/consensus/result", &res)
	return res, err
}

func (c *Client) Propose(req consensus.ProposeBlockRequest) (ProposeResponse, error) {
	var res ProposeResponse
	err := c.post("/block/propose", req, &res)
	return res, err
}

func (c *Client) Submit(req consensus.SubmitBlockRequest) (SubmitResponse, error) {
	var res SubmitResponse
	err := c.post("/block/submit", req, &res)
	return res, err
}

func (c *Client) Report(req consensus.ReportRequest) (ReportResponse, error) {
	var res ReportResponse
	err := c.post("/leader/report", req, &res)
	return res, err
}

func (c *Client) History(limit int) ([]consensus.Commit, error) {
	var res []consensus.Commit
	err := c.get(fmt.Sprintf("/blocks/history?limit=%d", limit), &res)
	return res, err
}

func (c *Client) Nodes() ([]consensus.NodeInfo, error) {
	var res []consensus.NodeInfo
	err := c.get("/debug/nodes", &res)
	return res, err
}

func (c *Client) Votes() ([]VoteView, error) {
	var res []VoteView
	err := c.get("/debug/votes", &res)
	return res, err
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	return c.do(req, out)
}

func (c *Client) post(path string, message, out any) error {
	messageJson, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBuffer(messageJson))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.log.Printf("POST %s\n", req.URL)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var errRes ErrorResponse
		if json.Unmarshal(body, &errRes) == nil && errRes.Error != "" {
			apiErr.Kind = errRes.Kind
			apiErr.Message = errRes.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}
