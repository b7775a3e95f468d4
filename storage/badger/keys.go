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
	"encoding/binary"
	"time"

	"github.com/poiesic/groundwork/core"
)

// Key prefixes for different data types
const (
	passagePrefix       = "psg:"
	passageSourcePrefix = "psgsrc:"
	turnPrefix          = "cnvturn:"
	sessionPrefix       = "cnvsess:"
	turnIDSeq           = "cnvturnseq"
	statsPrefix         = "stats:"
	checkpointPrefix    = "chkpt:"
)

// appendUint64 writes v in BigEndian order so lexicographic key order matches numeric order.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// makePassageKey generates a key for a passage by ID.
// Format: prefix + id
func makePassageKey(id core.ID) []byte {
	buf := make([]byte, 0, len(passagePrefix)+8)
	buf = append(buf, passagePrefix...)
	return appendUint64(buf, uint64(id))
}

// passageIDFromKey extracts the passage ID from a passage key.
func passageIDFromKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(passagePrefix):]))
}

// makePassageSourcePrefix generates the partial key of the source index for one source.
// Format: prefix + source + 0x00
func makePassageSourcePrefix(source string) []byte {
	buf := make([]byte, 0, len(passageSourcePrefix)+len(source)+1)
	buf = append(buf, passageSourcePrefix...)
	buf = append(buf, source...)
	return append(buf, 0)
}

// makePassageSourceKey generates a composite key for the source index.
// Format: prefix + source + 0x00 + id
func makePassageSourceKey(source string, id core.ID) []byte {
	return appendUint64(makePassageSourcePrefix(source), uint64(id))
}

// sessionKeyPart hashes a session ID into a fixed-width key component so that
// one session's key range can never contain another's.
func sessionKeyPart(sessionID string) uint64 {
	return uint64(core.IDFromContent(sessionID))
}

// makeTurnPrefix generates the partial key covering every turn of a session.
// Format: prefix + hash(session)
func makeTurnPrefix(sessionID string) []byte {
	buf := make([]byte, 0, len(turnPrefix)+8)
	buf = append(buf, turnPrefix...)
	return appendUint64(buf, sessionKeyPart(sessionID))
}

// makeTurnKey generates a key for a turn ordered by timestamp within its session.
// Format: prefix + hash(session) + timestamp + id
func makeTurnKey(sessionID string, timestamp time.Time, id core.ID) []byte {
	buf := makeTurnPrefix(sessionID)
	buf = appendUint64(buf, uint64(timestamp.UnixMicro()))
	return appendUint64(buf, uint64(id))
}

// makeSessionKey generates the marker key recording that a session exists.
func makeSessionKey(sessionID string) []byte {
	return []byte(sessionPrefix + sessionID)
}

// makeStatsKey generates the key for one day's counters.
// Format: prefix + unix day
func makeStatsKey(day time.Time) []byte {
	buf := make([]byte, 0, len(statsPrefix)+8)
	buf = append(buf, statsPrefix...)
	return appendUint64(buf, uint64(day.Unix()/86400))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + processorType)
}
