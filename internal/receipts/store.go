// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package receipts implements the C4 append-only receipts store: a
// line-delimited log of accepted solutions and of errors, used for
// crash recovery and duplicate detection.
package receipts

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"scavenger-miner/internal/log"
	"scavenger-miner/internal/merr"
	"scavenger-miner/internal/model"
)

var rcptLog = log.Logger(log.SubsystemReceipts)

// Store is the append-only receipts/errors log described in spec.md §4.4.
// Each stream is a separate file; appends within a stream are serialized
// by a mutex and written with a single buffered, newline-terminated
// write so a crash mid-append cannot corrupt a neighboring record.
type Store struct {
	receiptsPath string
	errorsPath   string

	receiptsMu sync.Mutex
	errorsMu   sync.Mutex
}

// Open returns a Store backed by receiptsPath and errorsPath, creating
// them if they do not already exist.
func Open(receiptsPath, errorsPath string) (*Store, error) {
	for _, p := range []string{receiptsPath, errorsPath} {
		f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, merr.New(merr.ErrReceiptsIO, "failed to open receipts file "+p, err)
		}
		f.Close()
	}
	return &Store{receiptsPath: receiptsPath, errorsPath: errorsPath}, nil
}

// AppendReceipt appends a successful submission record. Failures are
// logged but not fatal (spec.md §7: ReceiptsIoError is recoverable).
func (s *Store) AppendReceipt(entry model.ReceiptEntry) error {
	s.receiptsMu.Lock()
	defer s.receiptsMu.Unlock()
	return appendLine(s.receiptsPath, entry)
}

// AppendError appends a failed or uncertain submission record.
func (s *Store) AppendError(entry model.ErrorEntry) error {
	s.errorsMu.Lock()
	defer s.errorsMu.Unlock()
	return appendLine(s.errorsPath, entry)
}

func appendLine(path string, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return merr.New(merr.ErrReceiptsIO, "failed to marshal record", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		rcptLog.Errorf("failed to open %s for append: %v", path, err)
		return merr.New(merr.ErrReceiptsIO, "failed to open "+path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		rcptLog.Errorf("failed to append to %s: %v", path, err)
		return merr.New(merr.ErrReceiptsIO, "failed to append to "+path, err)
	}
	return nil
}

// ReadAllReceipts reads every receipt recorded so far, in file order.
func (s *Store) ReadAllReceipts() ([]model.ReceiptEntry, error) {
	s.receiptsMu.Lock()
	defer s.receiptsMu.Unlock()
	var out []model.ReceiptEntry
	err := readLines(s.receiptsPath, func(line []byte) error {
		var entry model.ReceiptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return err
		}
		out = append(out, entry)
		return nil
	})
	return out, err
}

// ReadAllErrors reads every error recorded so far, in file order.
func (s *Store) ReadAllErrors() ([]model.ErrorEntry, error) {
	s.errorsMu.Lock()
	defer s.errorsMu.Unlock()
	var out []model.ErrorEntry
	err := readLines(s.errorsPath, func(line []byte) error {
		var entry model.ErrorEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return err
		}
		out = append(out, entry)
		return nil
	})
	return out, err
}

// RecentReceipts returns up to the last n receipts, oldest first. It is
// implemented as a full read followed by a tail slice: receipt volumes
// are bounded by mining cadence, not request volume, so this is cheap
// in practice.
func (s *Store) RecentReceipts(n int) ([]model.ReceiptEntry, error) {
	all, err := s.ReadAllReceipts()
	if err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

func readLines(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return merr.New(merr.ErrReceiptsIO, "failed to open "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			// A truncated tail line from a crash mid-write is logged and
			// skipped rather than failing the whole recovery read.
			rcptLog.Warnf("skipping malformed record in %s: %v", path, err)
			continue
		}
	}
	return scanner.Err()
}
