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

import "errors"

// Repositories bundles every repository sharing one backend.
type Repositories struct {
	Backend       *Backend
	Passages      *PassageRepository
	Conversations *ConversationRepository
	Analytics     *AnalyticsRepository
	Checkpoints   *CheckpointRepository
}

// NewRepositories creates all repositories on top of backend.
func NewRepositories(backend *Backend, opts ...ConversationOption) (*Repositories, error) {
	passages, err := NewPassageRepository(backend)
	if err != nil {
		return nil, err
	}

	conversations, err := NewConversationRepository(backend, opts...)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Backend:       backend,
		Passages:      passages,
		Conversations: conversations,
		Analytics:     NewAnalyticsRepository(backend),
		Checkpoints:   NewCheckpointRepository(backend),
	}, nil
}

// Close releases every repository, then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Passages.Close(),
		r.Conversations.Close(),
		r.Backend.Close(),
	)
}
