// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scavengerclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"scavenger-miner/internal/merr"
)

func TestFetchChallengeActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"active","challenge":{"challenge_id":"C1","difficulty":"ffff"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	resp, err := c.FetchChallenge(context.Background())
	require.NoError(t, err)
	require.Equal(t, "C1", resp.Challenge.ChallengeID)
}

func TestSubmitSolutionDuplicateClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"solution already exists"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.SubmitSolution(context.Background(), "addr", "C1", "nonce")
	require.Error(t, err)
	var target *merr.Error
	require.True(t, errors.As(err, &target))
	require.Equal(t, merr.ErrDuplicateSolution, target.Kind)
}

func TestSubmitSolutionUnregisteredClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"address not registered"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.SubmitSolution(context.Background(), "addr", "C1", "nonce")
	require.Error(t, err)
	var target *merr.Error
	require.True(t, errors.As(err, &target))
	require.Equal(t, merr.ErrAddressUnregistered, target.Kind)
}

func TestSubmitSolutionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"crypto_receipt":{"ok":true}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	result, err := c.SubmitSolution(context.Background(), "addr", "C1", "nonce")
	require.NoError(t, err)
	require.NotEmpty(t, result.CryptoReceipt)
}

func TestSubmitSolutionOtherRejectionClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad nonce"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.SubmitSolution(context.Background(), "addr", "C1", "nonce")
	require.Error(t, err)
	var target *merr.Error
	require.True(t, errors.As(err, &target))
	require.Equal(t, merr.ErrSubmissionRejected, target.Kind)
}
