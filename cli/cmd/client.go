package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/MiguelVN7/Mini-Blockchain/api"
	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

// caller is the identity a client command acts as.
type caller struct {
	nodeID string
	key    *nodeKey
	client *api.Client
}

func newCaller(cmdCtx *cli.Context) (*caller, error) {
	nodeID := cmdCtx.String("node")
	if nodeID == "" {
		return nil, fmt.Errorf("a node id is required (--node or CONSENSUS_NODE)")
	}
	key, err := loadKey(cmdCtx.String("crypto"), cmdCtx.String("key"))
	if err != nil {
		return nil, err
	}
	return &caller{nodeID: nodeID, key: key, client: api.NewClient(cmdCtx.String("url"))}, nil
}

func (c *caller) sign(req consensus.SignedRequest) error {
	return consensus.SignRequest(req, c.key.signer)
}

// randomToken returns n random bytes, base64 encoded.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func RunRegister(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}

	ip := cmdCtx.String("ip")
	if ip == "" {
		ip, err = core.DiscoverPublicIP(cmdCtx.String("stun"))
		if err != nil {
			return fmt.Errorf("no --ip given and discovery failed: %w", err)
		}
		pterm.Info.Printfln("discovered public IP %s", ip)
	}

	req := consensus.RegisterRequest{NodeID: c.nodeID, IP: ip, PublicKey: c.key.publicKey}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.Register(req)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s registered, rotation order %d", c.nodeID, res.AssignedOrder)
	return nil
}

func RunFreeze(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}

	req := consensus.FreezeRequest{NodeID: c.nodeID, Tokens: cmdCtx.Int64("tokens")}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.Freeze(req)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("frozen stake of %s is now %s", c.nodeID, formatTokens(res.FrozenTokens))
	return nil
}

func RunSeed(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}

	turn := cmdCtx.Int("turn")
	if !cmdCtx.IsSet("turn") {
		status, err := c.client.Status()
		if err != nil {
			return err
		}
		turn = int(status.Turn)
	}
	token := cmdCtx.String("token")
	if token == "" {
		if token, err = randomToken(32); err != nil {
			return err
		}
	}

	req := consensus.SeedRequest{LeaderID: c.nodeID, EncryptedSeed: token, Turn: turn}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.PublishSeed(req)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("seed %#08x published for turn %d", res.Seed, turn)
	return nil
}

func RunVote(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}

	token := cmdCtx.String("token")
	if token == "" {
		if token, err = randomToken(32); err != nil {
			return err
		}
	}

	req := consensus.VoteRequest{NodeID: c.nodeID, EncryptedVote: token}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.Vote(req)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("vote recorded, selected rotation index %d", res.SelectedIndex)
	return nil
}

func blockFromFlags(cmdCtx *cli.Context) (consensus.BlockDescriptor, error) {
	block := consensus.BlockDescriptor{
		Index:        cmdCtx.Uint64("index"),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Transactions: []map[string]any{},
		PreviousHash: cmdCtx.String("prev"),
		Hash:         cmdCtx.String("hash"),
	}
	if txs := cmdCtx.String("txs"); txs != "" {
		if err := json.Unmarshal([]byte(txs), &block.Transactions); err != nil {
			return block, fmt.Errorf("--txs must be a JSON array of objects: %w", err)
		}
	}
	return block, nil
}

func RunPropose(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}
	block, err := blockFromFlags(cmdCtx)
	if err != nil {
		return err
	}

	req := consensus.ProposeBlockRequest{ProposerID: c.nodeID, Block: block}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.Propose(req)
	if err != nil {
		return err
	}
	if res.Status == api.StatusAuthorized {
		pterm.Success.Println("authorized to publish")
	} else {
		pterm.Warning.Println(res.Status)
	}
	return nil
}

func RunSubmit(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}
	block, err := blockFromFlags(cmdCtx)
	if err != nil {
		return err
	}

	req := consensus.SubmitBlockRequest{LeaderID: c.nodeID, Block: block}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.Submit(req)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("block %s committed, turn %d closed", res.BlockHash, res.Turn)
	return nil
}

func RunReport(cmdCtx *cli.Context) error {
	c, err := newCaller(cmdCtx)
	if err != nil {
		return err
	}

	req := consensus.ReportRequest{
		ReporterID: c.nodeID,
		LeaderID:   cmdCtx.String("accused"),
		Evidence: consensus.Evidence{
			BlockHash: cmdCtx.String("block-hash"),
			Reason:    cmdCtx.String("reason"),
		},
	}
	if err := c.sign(&req); err != nil {
		return err
	}
	res, err := c.client.Report(req)
	if err != nil {
		return err
	}
	if res.Status == api.StatusExpelled {
		pterm.Warning.Printfln("%s has been expelled", req.LeaderID)
	} else {
		pterm.Info.Printfln("accusation against %s is %s", req.LeaderID, res.Status)
	}
	return nil
}

func RunResult(cmdCtx *cli.Context) error {
	result, err := api.NewClient(cmdCtx.String("url")).Result()
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func RunStatus(cmdCtx *cli.Context) error {
	status, err := api.NewClient(cmdCtx.String("url")).Status()
	if err != nil {
		return err
	}
	return printStatus(status)
}

func RunNodes(cmdCtx *cli.Context) error {
	client := api.NewClient(cmdCtx.String("url"))
	nodes, err := client.Nodes()
	if err != nil {
		return err
	}
	if err := printNodes(nodes); err != nil {
		return err
	}

	if !cmdCtx.Bool("votes") {
		return nil
	}
	votes, err := client.Votes()
	if err != nil {
		return err
	}
	return printVotes(votes)
}

func RunHistory(cmdCtx *cli.Context) error {
	commits, err := api.NewClient(cmdCtx.String("url")).History(cmdCtx.Int("limit"))
	if err != nil {
		return err
	}
	return printHistory(commits)
}
