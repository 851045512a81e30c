package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/mux"

	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

// Requests larger than this are rejected.
const maxBodyBytes = 1 << 20

// Server exposes an Engine over HTTP/JSON.
type Server struct {
	router *mux.Router
	log    *log.Logger
	server *http.Server

	host        string
	port        int
	environment string
	scheme      string

	engine *consensus.Engine
}

// NewServer builds the router. ENV (dev, test or live) picks the bind host:
// loopback in dev, all interfaces otherwise. scheme is reported by the info
// endpoint so clients know how to sign.
func NewServer(engine *consensus.Engine, port int, scheme string) (*Server, error) {
	logger := core.NewLogger("api", "")
	environment := os.Getenv("ENV")
	if environment == "" {
		environment = "dev"
	}
	host, ok := map[string]string{
		"dev":  "127.0.0.1",
		"test": "0.0.0.0",
		"live": "0.0.0.0",
	}[environment]
	if !ok {
		return nil, fmt.Errorf("invalid environment %s, must be one of (dev, test, live)", environment)
	}
	logger.Println("Environment:", environment)

	s := &Server{
		router:      mux.NewRouter(),
		log:         logger,
		host:        host,
		port:        port,
		environment: environment,
		scheme:      scheme,
		engine:      engine,
	}

	s.router.HandleFunc("/", s.info).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	s.router.HandleFunc("/network/register", s.register).Methods(http.MethodPost)
	s.router.HandleFunc("/tokens/freeze", s.freeze).Methods(http.MethodPost)
	s.router.HandleFunc("/leader/random-seed", s.seed).Methods(http.MethodPost)
	s.router.HandleFunc("/consensus/vote", s.vote).Methods(http.MethodPost)
	s.router.HandleFunc("/consensus/result", s.result).Methods(http.MethodGet)
	s.router.HandleFunc("/block/propose", s.propose).Methods(http.MethodPost)
	s.router.HandleFunc("/block/submit", s.submit).Methods(http.MethodPost)
	s.router.HandleFunc("/leader/report", s.report).Methods(http.MethodPost)
	s.router.HandleFunc("/blocks/history", s.history).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/nodes", s.debugNodes).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/votes", s.debugVotes).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Printf("Listening on http://%s\n", s.server.Addr)

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:            "consensus",
		ProtocolVersion: ProtocolVersion,
		SignatureScheme: s.scheme,
		Endpoints: []string{
			"GET /status",
			"POST /network/register",
			"POST /tokens/freeze",
			"POST /leader/random-seed",
			"POST /consensus/vote",
			"GET /consensus/result",
			"POST /block/propose",
			"POST /block/submit",
			"POST /leader/report",
			"GET /blocks/history",
			"GET /debug/nodes",
			"GET /debug/votes",
		},
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req consensus.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, err := s.engine.RegisterNode(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{Status: StatusRegistered, AssignedOrder: order})
}

func (s *Server) freeze(w http.ResponseWriter, r *http.Request) {
	var req consensus.FreezeRequest
	if !s.decode(w, r, &req) {
		return
	}
	balance, err := s.engine.FreezeStake(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FreezeResponse{Status: StatusOK, FrozenTokens: balance})
}

func (s *Server) seed(w http.ResponseWriter, r *http.Request) {
	var req consensus.SeedRequest
	if !s.decode(w, r, &req) {
		return
	}
	seed, err := s.engine.PublishSeed(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SeedResponse{Status: StatusReceived, Seed: seed})
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	var req consensus.VoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	idx, err := s.engine.SubmitVote(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteResponse{Status: StatusRecorded, SelectedIndex: idx})
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Result())
}

func (s *Server) propose(w http.ResponseWriter, r *http.Request) {
	var req consensus.ProposeBlockRequest
	if !s.decode(w, r, &req) {
		return
	}
	authorized, err := s.engine.ProposeBlock(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := StatusPendingConsensus
	if authorized {
		status = StatusAuthorized
	}
	writeJSON(w, http.StatusOK, ProposeResponse{Status: status})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req consensus.SubmitBlockRequest
	if !s.decode(w, r, &req) {
		return
	}
	commit, err := s.engine.SubmitBlock(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Status: StatusBroadcasted, Turn: commit.Turn, BlockHash: commit.BlockHash})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	var req consensus.ReportRequest
	if !s.decode(w, r, &req) {
		return
	}
	expelled, err := s.engine.ReportFraud(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := StatusUnderReview
	if expelled {
		status = StatusExpelled
	}
	writeJSON(w, http.StatusOK, ReportResponse{Status: status})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		// A limit of zero or less returns every commit.
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer", Kind: consensus.KindValidation.String()})
			return
		}
		limit = n
	}
	commits, err := s.engine.History(limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

func (s *Server) debugNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Nodes())
}

func (s *Server) debugVotes(w http.ResponseWriter, r *http.Request) {
	votes := s.engine.Votes()
	views := make([]VoteView, len(votes))
	for i, v := range votes {
		token := v.Token
		if len(token) > 16 {
			token = token[:16] + "..."
		}
		views[i] = VoteView{NodeID: v.NodeID, Token: token, SelectedIndex: v.SelectedIndex}
	}
	writeJSON(w, http.StatusOK, views)
}

// decode reads a JSON request body. Numbers inside free-form fields keep
// their exact text so the canonical payload matches what the client signed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read request body", Kind: consensus.KindValidation.String()})
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON payload: %s", err), Kind: consensus.KindValidation.String()})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := consensus.KindOf(err)
	code := statusCode(kind)
	if code >= 500 {
		s.log.Printf("%s %s failed: %s\n", r.Method, r.URL.Path, color.HiRedString(err.Error()))
	} else {
		s.log.Printf("%s %s rejected: %s (%s)\n", r.Method, r.URL.Path, err, kind)
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error(), Kind: kind.String()})
}

func statusCode(kind consensus.ErrorKind) int {
	switch kind {
	case consensus.KindValidation:
		return http.StatusBadRequest
	case consensus.KindAuthorization:
		return http.StatusForbidden
	case consensus.KindProtocolState:
		return http.StatusConflict
	case consensus.KindNotFound:
		return http.StatusNotFound
	case consensus.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
