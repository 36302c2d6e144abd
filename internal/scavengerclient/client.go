// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scavengerclient implements the scavenger service HTTP surface
// (spec.md §6.1): fetching the current challenge, registering
// addresses, and submitting solutions.
package scavengerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scavenger-miner/internal/merr"
	"scavenger-miner/internal/model"
)

const (
	ChallengeTimeout    = 30 * time.Second
	RegistrationTimeout = 30 * time.Second
	TandCTimeout        = 30 * time.Second
	SubmissionTimeout   = 60 * time.Second
)

// Client is a thin HTTP binding over the scavenger service's REST
// surface. It holds no mutable state of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client targeting baseURL (e.g.
// "https://scavenger.prod.gd.midnighttge.io").
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// ChallengeResponse mirrors GET /challenge's payload.
type ChallengeResponse struct {
	Code      model.ChallengeCode `json:"code"`
	Challenge *model.Challenge    `json:"challenge,omitempty"`
}

// FetchChallenge issues GET /challenge.
func (c *Client) FetchChallenge(ctx context.Context) (*ChallengeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, ChallengeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/challenge", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET /challenge returned status %d", resp.StatusCode)
	}
	var out ChallengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Challenge != nil {
		out.Challenge.Code = out.Code
	}
	return &out, nil
}

// TandCResponse mirrors GET /TandC's payload.
type TandCResponse struct {
	Message string `json:"message"`
}

// FetchTandC issues GET /TandC.
func (c *Client) FetchTandC(ctx context.Context) (*TandCResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, TandCTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/TandC", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET /TandC returned status %d", resp.StatusCode)
	}
	var out TandCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register issues POST /register/{address}/{signature}/{publicKeyHex}.
// Signing itself is out of scope for this module (spec.md §1); callers
// supply a pre-computed signature.
func (c *Client) Register(ctx context.Context, address, signature, publicKeyHex string) error {
	ctx, cancel := context.WithTimeout(ctx, RegistrationTimeout)
	defer cancel()

	path := fmt.Sprintf("/register/%s/%s/%s",
		url.PathEscape(address), url.PathEscape(signature), url.PathEscape(publicKeyHex))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// SubmissionResult mirrors POST /solution's 2xx payload.
type SubmissionResult struct {
	CryptoReceipt json.RawMessage `json:"crypto_receipt,omitempty"`
}

// SubmitSolution issues POST /solution/{address}/{challenge_id}/{nonce}.
// It classifies the response per spec.md §4.8's submission protocol: 2xx
// is success; any other status comes back as a merr error of kind
// duplicate, unregistered or rejected; a request cut off by its deadline
// comes back as ErrSubmissionTimeout; other network errors are returned
// as-is.
func (c *Client) SubmitSolution(ctx context.Context, address, challengeID, nonce string) (*SubmissionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, SubmissionTimeout)
	defer cancel()

	path := fmt.Sprintf("/solution/%s/%s/%s",
		url.PathEscape(address), url.PathEscape(challengeID), url.PathEscape(nonce))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, merr.New(merr.ErrSubmissionTimeout, "submission request timed out", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 == 2 {
		var result SubmissionResult
		if len(body) > 0 {
			_ = json.Unmarshal(body, &result)
		}
		return &result, nil
	}
	return nil, classifySubmissionError(resp.StatusCode, body)
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func classifySubmissionError(status int, body []byte) error {
	var payload errorPayload
	_ = json.Unmarshal(body, &payload)
	msg := strings.ToLower(payload.Error + " " + payload.Message)
	if msg == " " {
		msg = strings.ToLower(string(body))
	}

	switch {
	case strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate"):
		return merr.New(merr.ErrDuplicateSolution, fmt.Sprintf("status %d: %s", status, msg), nil)
	case status == http.StatusForbidden || strings.Contains(msg, "not registered") || strings.Contains(msg, "unregistered"):
		return merr.New(merr.ErrAddressUnregistered, fmt.Sprintf("status %d: %s", status, msg), nil)
	default:
		return merr.New(merr.ErrSubmissionRejected, fmt.Sprintf("status %d: %s", status, msg), nil)
	}
}
