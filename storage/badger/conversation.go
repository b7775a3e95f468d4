// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/groundwork/core"
	"github.com/poiesic/groundwork/storage"
)

// DefaultMaxTurns is the default number of turns kept per session (50 messages).
const DefaultMaxTurns = 25

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
type ConversationRepository struct {
	backend  *Backend
	idSeq    *badger.Sequence
	maxTurns int
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// ConversationOption configures a ConversationRepository.
type ConversationOption func(*ConversationRepository)

// WithMaxTurns caps the number of turns kept per session. Values < 1 keep the default.
func WithMaxTurns(n int) ConversationOption {
	return func(r *ConversationRepository) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend, opts ...ConversationOption) (*ConversationRepository, error) {
	idSeq, err := backend.GetSequence(turnIDSeq)
	if err != nil {
		return nil, err
	}

	r := &ConversationRepository{
		backend:  backend,
		idSeq:    idSeq,
		maxTurns: DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases the ID sequence.
func (r *ConversationRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ConversationRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AppendTurn stores a turn and trims the session to the configured cap.
func (r *ConversationRepository) AppendTurn(ctx context.Context, turn *core.ConversationTurn) (*core.ConversationTurn, error) {
	if turn != nil && turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if err := core.ValidateTurn(turn); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		nextID, err := r.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			if nextID, err = r.idSeq.Next(); err != nil {
				return err
			}
		}
		turn.Id = core.ID(nextID)

		if err := tx.Set(makeTurnKey(turn.SessionID, turn.Timestamp, turn.Id), storage.MarshalTurn(turn)); err != nil {
			return err
		}
		if err := tx.Set(makeSessionKey(turn.SessionID), nil); err != nil {
			return err
		}
		if err := r.trim(tx, turn.SessionID); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// trim deletes the oldest turns of a session beyond maxTurns.
func (r *ConversationRepository) trim(tx *badger.Txn, sessionID string) error {
	keys := sessionTurnKeys(tx, sessionID)
	if excess := len(keys) - r.maxTurns; excess > 0 {
		for _, key := range keys[:excess] {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// LastTurns returns up to n of the most recent turns of a session, oldest first.
func (r *ConversationRepository) LastTurns(ctx context.Context, sessionID string, n int) ([]*core.ConversationTurn, error) {
	if n <= 0 || sessionID == "" {
		return []*core.ConversationTurn{}, nil
	}

	var turns []*core.ConversationTurn
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeTurnPrefix(sessionID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the last possible key of the session
		for iter.Seek(append(slices.Clone(prefix), 0xFF)); iter.Valid() && len(turns) < n; iter.Next() {
			turn, err := readTurnItem(iter.Item())
			if err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.Reverse(turns)
	return turns, nil
}

// Turns returns every stored turn of a session, oldest first.
func (r *ConversationRepository) Turns(ctx context.Context, sessionID string) ([]*core.ConversationTurn, error) {
	turns := []*core.ConversationTurn{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeTurnPrefix(sessionID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			turn, err := readTurnItem(iter.Item())
			if err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	}, false)
	return turns, err
}

// ClearSession removes a session and all of its turns.
func (r *ConversationRepository) ClearSession(ctx context.Context, sessionID string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range sessionTurnKeys(tx, sessionID) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeSessionKey(sessionID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Sessions returns the IDs of every session with stored turns.
func (r *ConversationRepository) Sessions(ctx context.Context) ([]string, error) {
	sessions := []string{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(sessionPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			sessions = append(sessions, string(iter.Item().Key()[len(sessionPrefix):]))
		}
		return nil
	}, false)
	return sessions, err
}

// sessionTurnKeys returns copies of a session's turn keys, oldest first.
func sessionTurnKeys(tx *badger.Txn, sessionID string) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeTurnPrefix(sessionID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}

func readTurnItem(item *badger.Item) (*core.ConversationTurn, error) {
	var turn *core.ConversationTurn
	err := item.Value(func(val []byte) error {
		var err error
		turn, err = storage.UnmarshalTurn(val)
		return err
	})
	return turn, err
}
