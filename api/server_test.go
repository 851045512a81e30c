package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

type peer struct {
	id     string
	ip     string
	wallet *core.Wallet
}

func newPeer(t *testing.T, id, ip string) *peer {
	t.Helper()
	wallet, err := core.CreateRandomWallet()
	require.NoError(t, err)
	return &peer{id: id, ip: ip, wallet: wallet}
}

func (p *peer) sign(t *testing.T, req consensus.SignedRequest) {
	t.Helper()
	require.NoError(t, consensus.SignRequest(req, p.wallet))
}

func newTestServer(t *testing.T) (*httptest.Server, *Client, *consensus.MemoryStore) {
	t.Helper()
	t.Setenv("ENV", "test")

	store := consensus.NewMemoryStore()
	engine, err := consensus.NewEngine(consensus.Config{
		Store:  store,
		Crypto: consensus.ECDSAProvider{},
		Logger: log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	srv, err := NewServer(engine, 0, consensus.SchemeECDSA)
	require.NoError(t, err)
	srv.log.SetOutput(io.Discard)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	client.log.SetOutput(io.Discard)
	return ts, client, store
}

func apiError(t *testing.T, err error) *APIError {
	t.Helper()
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	return apiErr
}

func TestNewServerRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("ENV", "staging")
	_, err := NewServer(nil, 8080, consensus.SchemeECDSA)
	assert.Error(t, err)
}

func TestServerFullTurn(t *testing.T) {
	assert := assert.New(t)
	_, client, _ := newTestServer(t)

	info, err := client.Info()
	require.NoError(t, err)
	assert.Equal(ProtocolVersion, info.ProtocolVersion)
	assert.Equal(consensus.SchemeECDSA, info.SignatureScheme)

	peers := []*peer{
		newPeer(t, "node-a", "192.168.1.10"),
		newPeer(t, "node-b", "192.168.1.20"),
		newPeer(t, "node-c", "192.168.1.30"),
	}
	byID := map[string]*peer{}
	for i, p := range peers {
		byID[p.id] = p

		reg := consensus.RegisterRequest{NodeID: p.id, IP: p.ip, PublicKey: p.wallet.PubkeyStr()}
		p.sign(t, &reg)
		res, err := client.Register(reg)
		require.NoError(t, err)
		assert.Equal(StatusRegistered, res.Status)
		assert.Equal(0, res.AssignedOrder)

		freeze := consensus.FreezeRequest{NodeID: p.id, Tokens: int64(100 + 50*i)}
		p.sign(t, &freeze)
		fres, err := client.Freeze(freeze)
		require.NoError(t, err)
		assert.Equal(StatusOK, fres.Status)
		assert.Equal(uint64(100+50*i), fres.FrozenTokens)
	}

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(consensus.PhaseAwaitingSeed, status.Phase)
	assert.Equal("node-c", status.LeaderForTurn)

	seedReq := consensus.SeedRequest{LeaderID: "node-c", EncryptedSeed: "AKs=", Turn: 0}
	byID["node-c"].sign(t, &seedReq)
	sres, err := client.PublishSeed(seedReq)
	require.NoError(t, err)
	assert.Equal(StatusReceived, sres.Status)
	assert.Equal(uint32(0xAB), sres.Seed)

	for _, p := range peers {
		vote := consensus.VoteRequest{NodeID: p.id, EncryptedVote: "a-rather-long-vote-token-" + p.id}
		p.sign(t, &vote)
		vres, err := client.Vote(vote)
		require.NoError(t, err)
		assert.Equal(StatusRecorded, vres.Status)
	}

	votes, err := client.Votes()
	require.NoError(t, err)
	require.Len(t, votes, 3)
	assert.Equal("a-rather-long-vo...", votes[0].Token)

	result, err := client.Result()
	require.NoError(t, err)
	assert.True(result.ThresholdReached)
	assert.Equal(1.0, result.Agreement)
	winner := byID[result.Leader]
	require.NotNil(t, winner)

	block := consensus.BlockDescriptor{
		Index:        1,
		Timestamp:    "2024-05-01T12:00:00Z",
		Transactions: []map[string]any{{"from": "x", "to": "y", "amount": 12.5}},
		PreviousHash: "0000",
		Hash:         "beef",
	}

	propose := consensus.ProposeBlockRequest{ProposerID: winner.id, Block: block}
	winner.sign(t, &propose)
	pres, err := client.Propose(propose)
	require.NoError(t, err)
	assert.Equal(StatusAuthorized, pres.Status)

	submit := consensus.SubmitBlockRequest{LeaderID: winner.id, Block: block}
	winner.sign(t, &submit)
	subres, err := client.Submit(submit)
	require.NoError(t, err)
	assert.Equal(StatusBroadcasted, subres.Status)
	assert.Equal(uint16(0), subres.Turn)
	assert.Equal("beef", subres.BlockHash)

	status, err = client.Status()
	require.NoError(t, err)
	assert.Equal(uint16(1), status.Turn)
	assert.Nil(status.Seed)

	history, err := client.History(5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(winner.id, history[0].LeaderID)

	nodes, err := client.Nodes()
	require.NoError(t, err)
	assert.Len(nodes, 3)
}

func TestServerErrorStatusCodes(t *testing.T) {
	assert := assert.New(t)
	_, client, store := newTestServer(t)

	a := newPeer(t, "node-a", "10.0.0.2")
	b := newPeer(t, "node-b", "10.0.0.1")

	// Validation: malformed address.
	reg := consensus.RegisterRequest{NodeID: a.id, IP: "10.0.0", PublicKey: a.wallet.PubkeyStr()}
	a.sign(t, &reg)
	_, err := client.Register(reg)
	apiErr := apiError(t, err)
	assert.Equal(http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal("ValidationError", apiErr.Kind)

	// Not found: freezing before registering.
	freeze := consensus.FreezeRequest{NodeID: a.id, Tokens: 10}
	a.sign(t, &freeze)
	_, err = client.Freeze(freeze)
	assert.Equal(http.StatusNotFound, apiError(t, err).StatusCode)

	for _, p := range []*peer{a, b} {
		reg := consensus.RegisterRequest{NodeID: p.id, IP: p.ip, PublicKey: p.wallet.PubkeyStr()}
		p.sign(t, &reg)
		_, err := client.Register(reg)
		require.NoError(t, err)
	}

	// Authorization: b does not lead turn 0.
	seed := consensus.SeedRequest{LeaderID: b.id, EncryptedSeed: "AKs=", Turn: 0}
	b.sign(t, &seed)
	_, err = client.PublishSeed(seed)
	apiErr = apiError(t, err)
	assert.Equal(http.StatusForbidden, apiErr.StatusCode)
	assert.Equal("AuthorizationError", apiErr.Kind)

	// Protocol state: voting before the seed.
	vote := consensus.VoteRequest{NodeID: a.id, EncryptedVote: "tok"}
	a.sign(t, &vote)
	_, err = client.Vote(vote)
	assert.Equal(http.StatusConflict, apiError(t, err).StatusCode)

	// Persistence.
	store.FailSaves(errors.New("disk full"))
	a.sign(t, &freeze)
	_, err = client.Freeze(freeze)
	apiErr = apiError(t, err)
	assert.Equal(http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal("PersistenceError", apiErr.Kind)
}

func TestServerRejectsBadBodies(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/tokens/freeze", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ValidationError", body.Kind)

	resp2, err := http.Get(ts.URL + "/tokens/freeze")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)

	resp3, err := http.Get(ts.URL + "/blocks/history?limit=abc")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestStatusCodeMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusCode(consensus.KindValidation))
	assert.Equal(t, http.StatusForbidden, statusCode(consensus.KindAuthorization))
	assert.Equal(t, http.StatusConflict, statusCode(consensus.KindProtocolState))
	assert.Equal(t, http.StatusNotFound, statusCode(consensus.KindNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusCode(consensus.KindPersistence))
	assert.Equal(t, http.StatusInternalServerError, statusCode(consensus.KindInternal))
}
