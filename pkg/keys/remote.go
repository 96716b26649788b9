package keys

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RemoteSigner delegates signing to an HTTP signing service. The service
// receives {"address","digest"} and answers with {"v","r","s"}.
type RemoteSigner struct {
	endpoint string
	address  common.Address
	client   *http.Client
}

// NewRemoteSigner returns a signer that posts digests to endpoint. A nil
// client gets a default one with a 10 second timeout.
func NewRemoteSigner(endpoint string, address common.Address, client *http.Client) *RemoteSigner {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteSigner{endpoint: endpoint, address: address, client: client}
}

// Address returns the address the remote service signs for.
func (s *RemoteSigner) Address() common.Address {
	return s.address
}

type remoteSignRequest struct {
	Address common.Address `json:"address"`
	Digest  hexutil.Bytes  `json:"digest"`
}

// Sign asks the remote service for a signature and checks that it recovers
// to the expected address.
func (s *RemoteSigner) Sign(ctx context.Context, digest []byte) (Signature, error) {
	body, err := json.Marshal(remoteSignRequest{Address: s.address, Digest: digest})
	if err != nil {
		return Signature{}, fmt.Errorf("marshal sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Signature{}, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Signature{}, fmt.Errorf("remote sign: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Signature{}, fmt.Errorf("remote sign: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var sig Signature
	if err := json.NewDecoder(resp.Body).Decode(&sig); err != nil {
		return Signature{}, fmt.Errorf("decode sign response: %w", err)
	}
	sig, err = sig.Normalize()
	if err != nil {
		return Signature{}, err
	}

	signer, err := Recover(digest, sig)
	if err != nil {
		return Signature{}, err
	}
	if signer != s.address {
		return Signature{}, fmt.Errorf("remote sign: signature recovers to %s, want %s", signer, s.address)
	}
	return sig, nil
}
