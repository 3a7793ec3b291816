// pkg/feed/codec.go
package feed

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/opd-ai/go-lakefleet/pkg/engine"
	"github.com/opd-ai/go-lakefleet/pkg/geom"
)

// ErrMalformedFrame is returned when a binary snapshot cannot be decoded
var ErrMalformedFrame = errors.New("malformed snapshot frame")

// Binary snapshot layout, in protobuf wire format:
//
//	Snapshot  { 1 run_id string, 2 tick varint, 3 time double, 4 status string,
//	            5 boundary repeated Point, 6 agents repeated Agent,
//	            7 conflicts repeated Conflict, 8 stats Stats }
//	Point     { 1 x double, 2 y double }
//	Agent     { 1 id varint, 2 name string, 3 x double, 4 y double,
//	            5 heading double, 6 speed double, 7 width double,
//	            8 moving bool, 9 start Point, 10 end Point }
//	Conflict  { 1 a varint, 2 b varint, 3 yielding varint, 4 area double }
//	Stats     { 1 ticks, 2 live, 3 spawned, 4 arrived, 5 pairs_evaluated,
//	            6 pairs_pruned, 7 conflicts, 8 yields, 9 blocked_spawns } all varint
const (
	snapRunID     protowire.Number = 1
	snapTick      protowire.Number = 2
	snapTime      protowire.Number = 3
	snapStatus    protowire.Number = 4
	snapBoundary  protowire.Number = 5
	snapAgents    protowire.Number = 6
	snapConflicts protowire.Number = 7
	snapStats     protowire.Number = 8

	pointX protowire.Number = 1
	pointY protowire.Number = 2

	agentID      protowire.Number = 1
	agentName    protowire.Number = 2
	agentX       protowire.Number = 3
	agentY       protowire.Number = 4
	agentHeading protowire.Number = 5
	agentSpeed   protowire.Number = 6
	agentWidth   protowire.Number = 7
	agentMoving  protowire.Number = 8
	agentStart   protowire.Number = 9
	agentEnd     protowire.Number = 10

	conflictA        protowire.Number = 1
	conflictB        protowire.Number = 2
	conflictYielding protowire.Number = 3
	conflictArea     protowire.Number = 4
)

// EncodeSnapshot serializes a snapshot as a protobuf wire message
func EncodeSnapshot(s *engine.Snapshot) []byte {
	var b []byte
	b = appendString(b, snapRunID, s.RunID)
	b = appendVarint(b, snapTick, s.Tick)
	b = appendDouble(b, snapTime, s.Time)
	b = appendString(b, snapStatus, s.Status)
	for _, p := range s.Boundary {
		b = appendMessage(b, snapBoundary, encodePoint(p))
	}
	for _, a := range s.Agents {
		b = appendMessage(b, snapAgents, encodeAgent(a))
	}
	for _, c := range s.Conflicts {
		b = appendMessage(b, snapConflicts, encodeConflict(c))
	}
	b = appendMessage(b, snapStats, encodeStats(s))
	return b
}

func encodePoint(p geom.Vector2D) []byte {
	var b []byte
	b = appendDouble(b, pointX, p.X)
	b = appendDouble(b, pointY, p.Y)
	return b
}

func encodeAgent(a engine.AgentState) []byte {
	var b []byte
	b = appendVarint(b, agentID, a.ID)
	b = appendString(b, agentName, a.Name)
	b = appendDouble(b, agentX, a.X)
	b = appendDouble(b, agentY, a.Y)
	b = appendDouble(b, agentHeading, a.Heading)
	b = appendDouble(b, agentSpeed, a.Speed)
	b = appendDouble(b, agentWidth, a.Width)
	b = appendVarint(b, agentMoving, protowire.EncodeBool(a.Moving))
	b = appendMessage(b, agentStart, encodePoint(a.Start))
	b = appendMessage(b, agentEnd, encodePoint(a.End))
	return b
}

func encodeConflict(c engine.ConflictState) []byte {
	var b []byte
	b = appendVarint(b, conflictA, c.A)
	b = appendVarint(b, conflictB, c.B)
	b = appendVarint(b, conflictYielding, c.Yielding)
	b = appendDouble(b, conflictArea, c.Area)
	return b
}

func encodeStats(s *engine.Snapshot) []byte {
	st := s.Stats
	var b []byte
	for i, v := range []uint64{
		st.Ticks, uint64(st.Live), st.Spawned, st.Arrived, st.PairsEvaluated,
		st.PairsPruned, st.Conflicts, st.Yields, st.BlockedSpawns,
	} {
		b = appendVarint(b, protowire.Number(i+1), v)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// field is one decoded field. Exactly one of varint, fixed or bytes is set,
// according to typ.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	fixed  uint64
	bytes  []byte
}

func (f field) double() float64 {
	return math.Float64frombits(f.fixed)
}

// walk calls fn for every field in b. Unknown wire types are skipped.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				b = b[n:]
				continue
			}
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// expect fails when a known field arrives with the wrong wire type.
func expect(f field, typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformedFrame, f.num, f.typ, typ)
	}
	return nil
}

// DecodeSnapshot parses a frame produced by EncodeSnapshot
func DecodeSnapshot(b []byte) (*engine.Snapshot, error) {
	s := &engine.Snapshot{}
	err := walk(b, func(f field) error {
		switch f.num {
		case snapRunID, snapStatus:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			if f.num == snapRunID {
				s.RunID = string(f.bytes)
			} else {
				s.Status = string(f.bytes)
			}
		case snapTick:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
			s.Tick = f.varint
		case snapTime:
			if err := expect(f, protowire.Fixed64Type); err != nil {
				return err
			}
			s.Time = f.double()
		case snapBoundary:
			p, err := decodePoint(f)
			if err != nil {
				return err
			}
			s.Boundary = append(s.Boundary, p)
		case snapAgents:
			a, err := decodeAgent(f)
			if err != nil {
				return err
			}
			s.Agents = append(s.Agents, a)
		case snapConflicts:
			c, err := decodeConflict(f)
			if err != nil {
				return err
			}
			s.Conflicts = append(s.Conflicts, c)
		case snapStats:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			return decodeStats(f.bytes, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Agents == nil {
		s.Agents = []engine.AgentState{}
	}
	return s, nil
}

func decodePoint(f field) (geom.Vector2D, error) {
	var p geom.Vector2D
	if err := expect(f, protowire.BytesType); err != nil {
		return p, err
	}
	err := walk(f.bytes, func(f field) error {
		switch f.num {
		case pointX, pointY:
			if err := expect(f, protowire.Fixed64Type); err != nil {
				return err
			}
			if f.num == pointX {
				p.X = f.double()
			} else {
				p.Y = f.double()
			}
		}
		return nil
	})
	return p, err
}

func decodeAgent(f field) (engine.AgentState, error) {
	var a engine.AgentState
	if err := expect(f, protowire.BytesType); err != nil {
		return a, err
	}
	err := walk(f.bytes, func(f field) error {
		switch f.num {
		case agentID, agentMoving:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
			if f.num == agentID {
				a.ID = f.varint
			} else {
				a.Moving = protowire.DecodeBool(f.varint)
			}
		case agentName:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			a.Name = string(f.bytes)
		case agentX, agentY, agentHeading, agentSpeed, agentWidth:
			if err := expect(f, protowire.Fixed64Type); err != nil {
				return err
			}
			v := f.double()
			switch f.num {
			case agentX:
				a.X = v
			case agentY:
				a.Y = v
			case agentHeading:
				a.Heading = v
			case agentSpeed:
				a.Speed = v
			default:
				a.Width = v
			}
		case agentStart, agentEnd:
			p, err := decodePoint(f)
			if err != nil {
				return err
			}
			if f.num == agentStart {
				a.Start = p
			} else {
				a.End = p
			}
		}
		return nil
	})
	return a, err
}

func decodeConflict(f field) (engine.ConflictState, error) {
	var c engine.ConflictState
	if err := expect(f, protowire.BytesType); err != nil {
		return c, err
	}
	err := walk(f.bytes, func(f field) error {
		switch f.num {
		case conflictA, conflictB, conflictYielding:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
			switch f.num {
			case conflictA:
				c.A = f.varint
			case conflictB:
				c.B = f.varint
			default:
				c.Yielding = f.varint
			}
		case conflictArea:
			if err := expect(f, protowire.Fixed64Type); err != nil {
				return err
			}
			c.Area = f.double()
		}
		return nil
	})
	return c, err
}

func decodeStats(b []byte, s *engine.Snapshot) error {
	st := &s.Stats
	return walk(b, func(f field) error {
		if f.num < 1 || f.num > 9 {
			return nil
		}
		if err := expect(f, protowire.VarintType); err != nil {
			return err
		}
		v := f.varint
		switch f.num {
		case 1:
			st.Ticks = v
		case 2:
			st.Live = int(v)
		case 3:
			st.Spawned = v
		case 4:
			st.Arrived = v
		case 5:
			st.PairsEvaluated = v
		case 6:
			st.PairsPruned = v
		case 7:
			st.Conflicts = v
		case 8:
			st.Yields = v
		case 9:
			st.BlockedSpawns = v
		}
		return nil
	})
}
