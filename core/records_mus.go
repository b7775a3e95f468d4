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

package core

import (
	"errors"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS codecs for stored records. Field order is the wire order; append new
// fields at the end of a record.

var errBadLength = errors.New("mus: invalid length")

var (
	IDMUS               = idMUS{}
	PassageMUS          = passageMUS{}
	ConversationTurnMUS = conversationTurnMUS{}
	CheckpointMUS       = checkpointMUS{}
	DailyStatsMUS       = dailyStatsMUS{}
)

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	tmp, n, err := varint.Uint64.Unmarshal(bs)
	return ID(tmp), n, err
}

func (s idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

// Timestamps are stored as Unix microseconds and decoded as UTC.

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, errBadLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return
}

func marshalStrings(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return
}

func unmarshalStrings(bs []byte) (v []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, errBadLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]string, length)
	var n1 int
	for i := range v {
		v[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func sizeStrings(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return
}

type passageMUS struct{}

func (s passageMUS) Marshal(v Passage, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Source, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (s passageMUS) Unmarshal(bs []byte) (v Passage, n int, err error) {
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (s passageMUS) Size(v Passage) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Source)
	size += ord.String.Size(v.Text)
	size += sizeVector(v.Vector)
	size += sizeTime(v.InsertedAt)
	return size + sizeTime(v.UpdatedAt)
}

type conversationTurnMUS struct{}

func (s conversationTurnMUS) Marshal(v ConversationTurn, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.SessionID, bs[n:])
	n += ord.String.Marshal(v.Question, bs[n:])
	n += ord.String.Marshal(v.Answer, bs[n:])
	n += marshalStrings(v.Sources, bs[n:])
	n += marshalTime(v.Timestamp, bs[n:])
	return
}

func (s conversationTurnMUS) Unmarshal(bs []byte) (v ConversationTurn, n int, err error) {
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.SessionID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Question, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Answer, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Sources, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Timestamp, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (s conversationTurnMUS) Size(v ConversationTurn) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.SessionID)
	size += ord.String.Size(v.Question)
	size += ord.String.Size(v.Answer)
	size += sizeStrings(v.Sources)
	return size + sizeTime(v.Timestamp)
}

type checkpointMUS struct{}

func (s checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.ProcessorType, bs)
	n += IDMUS.Marshal(v.LastID, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (s checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	v.ProcessorType, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.LastID, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (s checkpointMUS) Size(v Checkpoint) (size int) {
	size = ord.String.Size(v.ProcessorType)
	size += IDMUS.Size(v.LastID)
	return size + sizeTime(v.UpdatedAt)
}

type dailyStatsMUS struct{}

func (s dailyStatsMUS) Marshal(v DailyStats, bs []byte) (n int) {
	n = marshalTime(v.Day, bs)
	n += varint.Int.Marshal(v.Queries, bs[n:])
	n += varint.Int.Marshal(v.Sessions, bs[n:])
	n += varint.Int.Marshal(v.Errors, bs[n:])
	n += varint.Int.Marshal(v.PositiveFeedback, bs[n:])
	n += varint.Int.Marshal(v.NegativeFeedback, bs[n:])
	n += varint.Int.Marshal(v.Sources, bs[n:])
	n += varint.Int64.Marshal(v.ResponseMicros, bs[n:])
	return
}

func (s dailyStatsMUS) Unmarshal(bs []byte) (v DailyStats, n int, err error) {
	v.Day, n, err = unmarshalTime(bs)
	if err != nil {
		return
	}
	var n1 int
	for _, field := range []*int{
		&v.Queries, &v.Sessions, &v.Errors,
		&v.PositiveFeedback, &v.NegativeFeedback, &v.Sources,
	} {
		*field, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.ResponseMicros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	return
}

func (s dailyStatsMUS) Size(v DailyStats) (size int) {
	size = sizeTime(v.Day)
	size += varint.Int.Size(v.Queries)
	size += varint.Int.Size(v.Sessions)
	size += varint.Int.Size(v.Errors)
	size += varint.Int.Size(v.PositiveFeedback)
	size += varint.Int.Size(v.NegativeFeedback)
	size += varint.Int.Size(v.Sources)
	return size + varint.Int64.Size(v.ResponseMicros)
}
