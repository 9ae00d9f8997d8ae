package render

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Recorder receives the commands of one frame in submission order.
//
// Implementations are driven from a single goroutine: the one consuming
// draw resources from the collector.
type Recorder interface {
	// Begin starts a frame targeting vp.
	Begin(vp Viewport) error

	BindPipeline(id PipelineID)
	BindVertexBuffer(id BufferID)
	BindIndexBuffer(id BufferID)
	BindDescriptor(id DescriptorID)
	DrawIndexed(indexCount uint32)

	// End finishes the frame and submits it.
	End() error
}

// OpCode identifies a recorded command.
type OpCode uint8

const (
	OpBegin OpCode = iota
	OpBindPipeline
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpBindDescriptor
	OpDrawIndexed
	OpEnd
)

var opCodeNames = [...]string{
	OpBegin:            "Begin",
	OpBindPipeline:     "BindPipeline",
	OpBindVertexBuffer: "BindVertexBuffer",
	OpBindIndexBuffer:  "BindIndexBuffer",
	OpBindDescriptor:   "BindDescriptor",
	OpDrawIndexed:      "DrawIndexed",
	OpEnd:              "End",
}

// String returns the name of the op code.
func (o OpCode) String() string {
	if int(o) < len(opCodeNames) {
		return opCodeNames[o]
	}
	return "Unknown"
}

// Op is one recorded command. Arg is the bound handle or the index count.
type Op struct {
	Code OpCode
	Arg  uint64
}

func (o Op) String() string {
	switch o.Code {
	case OpBegin, OpEnd:
		return o.Code.String()
	default:
		return fmt.Sprintf("%s(%d)", o.Code, o.Arg)
	}
}

// CommandStream is a Recorder that keeps every command in memory. It backs
// headless runs and lets tests assert on submission order.
type CommandStream struct {
	mu       sync.Mutex
	ops      []Op
	viewport Viewport
	frames   int
	open     bool
}

// NewCommandStream creates an empty stream.
func NewCommandStream() *CommandStream {
	return &CommandStream{}
}

func (s *CommandStream) push(code OpCode, arg uint64) {
	s.mu.Lock()
	s.ops = append(s.ops, Op{Code: code, Arg: arg})
	s.mu.Unlock()
}

// Begin implements Recorder. It clears the commands of the previous frame.
func (s *CommandStream) Begin(vp Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Errorf("render: frame %d already begun", s.frames)
	}
	s.open = true
	s.viewport = vp
	s.ops = append(s.ops[:0], Op{Code: OpBegin})
	return nil
}

// BindPipeline implements Recorder.
func (s *CommandStream) BindPipeline(id PipelineID) { s.push(OpBindPipeline, uint64(id)) }

// BindVertexBuffer implements Recorder.
func (s *CommandStream) BindVertexBuffer(id BufferID) { s.push(OpBindVertexBuffer, uint64(id)) }

// BindIndexBuffer implements Recorder.
func (s *CommandStream) BindIndexBuffer(id BufferID) { s.push(OpBindIndexBuffer, uint64(id)) }

// BindDescriptor implements Recorder.
func (s *CommandStream) BindDescriptor(id DescriptorID) { s.push(OpBindDescriptor, uint64(id)) }

// DrawIndexed implements Recorder.
func (s *CommandStream) DrawIndexed(indexCount uint32) { s.push(OpDrawIndexed, uint64(indexCount)) }

// End implements Recorder.
func (s *CommandStream) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return errors.New("render: end without begin")
	}
	s.open = false
	s.frames++
	s.ops = append(s.ops, Op{Code: OpEnd})
	return nil
}

// Ops returns a copy of the commands of the current frame.
func (s *CommandStream) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// Draws returns the number of DrawIndexed commands in the current frame.
func (s *CommandStream) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Code == OpDrawIndexed {
			n++
		}
	}
	return n
}

// Frames returns the number of frames ended.
func (s *CommandStream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Viewport returns the viewport of the current frame.
func (s *CommandStream) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

func (s *CommandStream) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, len(s.ops))
	for i, op := range s.ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ")
}

// Encoder records draw resources into a Recorder, skipping redundant
// pipeline binds between consecutive draws.
type Encoder struct {
	rec      Recorder
	pipeline PipelineID
	draws    int
}

// NewEncoder creates an encoder writing to rec.
func NewEncoder(rec Recorder) *Encoder {
	return &Encoder{rec: rec}
}

// Encode records d. Empty resources record nothing.
func (e *Encoder) Encode(d DrawResource) {
	if d.Empty() {
		return
	}
	if d.Pipeline != e.pipeline {
		e.rec.BindPipeline(d.Pipeline)
		e.pipeline = d.Pipeline
	}
	if d.HasDescriptor {
		e.rec.BindDescriptor(d.Descriptor)
	}
	e.rec.BindVertexBuffer(d.VertexBuffer)
	e.rec.BindIndexBuffer(d.IndexBuffer)
	e.rec.DrawIndexed(d.IndexCount)
	e.draws++
}

// Draws returns the number of draws encoded.
func (e *Encoder) Draws() int { return e.draws }

var _ Recorder = (*CommandStream)(nil)
