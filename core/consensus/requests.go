package consensus

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Request types mirror the HTTP API. Every request is signed by its caller
// over CanonicalJSON of the request, which excludes the signature field.

type RegisterRequest struct {
	NodeID    string `json:"nodeId"`
	IP        string `json:"ip"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

type FreezeRequest struct {
	NodeID    string `json:"nodeId"`
	Tokens    int64  `json:"tokens"`
	Signature string `json:"signature"`
}

type SeedRequest struct {
	LeaderID string `json:"leaderId"`
	// Base64 token carrying the leader's randomness. See ExtractRandomness.
	EncryptedSeed string `json:"encryptedSeed"`
	Turn          int    `json:"turn"`
	Signature     string `json:"signature"`
}

type VoteRequest struct {
	NodeID        string `json:"nodeId"`
	EncryptedVote string `json:"encryptedVote"`
	Signature     string `json:"signature"`
}

type ProposeBlockRequest struct {
	ProposerID string          `json:"proposerId"`
	Block      BlockDescriptor `json:"block"`
	Signature  string          `json:"signature"`
}

type SubmitBlockRequest struct {
	LeaderID  string          `json:"leaderId"`
	Block     BlockDescriptor `json:"block"`
	Signature string          `json:"signature"`
}

type ReportRequest struct {
	ReporterID string   `json:"reporterId"`
	LeaderID   string   `json:"leaderId"`
	Evidence   Evidence `json:"evidence"`
	Signature  string   `json:"signature"`
}

// SignedRequest is implemented by pointers to every request type.
type SignedRequest interface {
	// Validate checks the request's structure. It never looks at engine state.
	Validate() error
	callerID() string
	signature() string
	setSignature(sig string)
}

// Signer produces raw signatures. core.Wallet is one.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// CanonicalJSON encodes v as compact JSON with object keys sorted at every
// level, no HTML escaping, and any top-level "signature" field removed. The same
// logical request always encodes to the same bytes, whichever client built it.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	// Round-trip through generic values: encoding/json sorts map keys.
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	if m, ok := generic.(map[string]any); ok {
		delete(m, "signature")
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SignRequest signs the canonical payload of req and stores the base64
// signature in it.
func SignRequest(req SignedRequest, signer Signer) error {
	payload, err := CanonicalJSON(req)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return err
	}
	req.setSignature(base64.StdEncoding.EncodeToString(sig))
	return nil
}

// decodeSignature returns the raw signature bytes of a request.
func decodeSignature(req SignedRequest) ([]byte, error) {
	if req.signature() == "" {
		return nil, fmt.Errorf("%w: signature", ErrMissingField)
	}
	sig, err := base64.StdEncoding.DecodeString(req.signature())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return sig, nil
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}

func (r *RegisterRequest) Validate() error {
	if err := requireField("nodeId", r.NodeID); err != nil {
		return err
	}
	if err := requireField("publicKey", r.PublicKey); err != nil {
		return err
	}
	if _, err := ParseIPv4(r.IP); err != nil {
		return err
	}
	_, err := decodeSignature(r)
	return err
}

func (r *FreezeRequest) Validate() error {
	if err := requireField("nodeId", r.NodeID); err != nil {
		return err
	}
	if r.Tokens < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeStake, r.Tokens)
	}
	_, err := decodeSignature(r)
	return err
}

func (r *SeedRequest) Validate() error {
	if err := requireField("leaderId", r.LeaderID); err != nil {
		return err
	}
	if r.Turn < 0 || r.Turn > 65535 {
		return fmt.Errorf("%w: got %d", ErrTurnOutOfRange, r.Turn)
	}
	if _, err := ExtractRandomness(r.EncryptedSeed); err != nil {
		return err
	}
	_, err := decodeSignature(r)
	return err
}

func (r *VoteRequest) Validate() error {
	if err := requireField("nodeId", r.NodeID); err != nil {
		return err
	}
	if err := requireField("encryptedVote", r.EncryptedVote); err != nil {
		return err
	}
	_, err := decodeSignature(r)
	return err
}

func (r *ProposeBlockRequest) Validate() error {
	if err := requireField("proposerId", r.ProposerID); err != nil {
		return err
	}
	_, err := decodeSignature(r)
	return err
}

func (r *SubmitBlockRequest) Validate() error {
	if err := requireField("leaderId", r.LeaderID); err != nil {
		return err
	}
	_, err := decodeSignature(r)
	return err
}

func (r *ReportRequest) Validate() error {
	if err := requireField("reporterId", r.ReporterID); err != nil {
		return err
	}
	if err := requireField("leaderId", r.LeaderID); err != nil {
		return err
	}
	if r.ReporterID == r.LeaderID {
		return ErrSelfAccusation
	}
	_, err := decodeSignature(r)
	return err
}

func (r *RegisterRequest) callerID() string     { return r.NodeID }
func (r *FreezeRequest) callerID() string       { return r.NodeID }
func (r *SeedRequest) callerID() string         { return r.LeaderID }
func (r *VoteRequest) callerID() string         { return r.NodeID }
func (r *ProposeBlockRequest) callerID() string { return r.ProposerID }
func (r *SubmitBlockRequest) callerID() string  { return r.LeaderID }
func (r *ReportRequest) callerID() string       { return r.ReporterID }

func (r *RegisterRequest) signature() string     { return r.Signature }
func (r *FreezeRequest) signature() string       { return r.Signature }
func (r *SeedRequest) signature() string         { return r.Signature }
func (r *VoteRequest) signature() string         { return r.Signature }
func (r *ProposeBlockRequest) signature() string { return r.Signature }
func (r *SubmitBlockRequest) signature() string  { return r.Signature }
func (r *ReportRequest) signature() string       { return r.Signature }

func (r *RegisterRequest) setSignature(sig string)     { r.Signature = sig }
func (r *FreezeRequest) setSignature(sig string)       { r.Signature = sig }
func (r *SeedRequest) setSignature(sig string)         { r.Signature = sig }
func (r *VoteRequest) setSignature(sig string)         { r.Signature = sig }
func (r *ProposeBlockRequest) setSignature(sig string) { r.Signature = sig }
func (r *SubmitBlockRequest) setSignature(sig string)  { r.Signature = sig }
func (r *ReportRequest) setSignature(sig string)       { r.Signature = sig }
