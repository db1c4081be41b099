package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/danieljhkim/chartpatch/internal/fsops"
)

var (
	// ErrUnknownEvent indicates an eventType outside the known set.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrInvalidEvent indicates a known event with a malformed payload.
	ErrInvalidEvent = errors.New("invalid event")
)

// maxLine bounds a single JSONL record; file contents ride inside events.
const maxLine = 16 << 20

type header struct {
	EventType   Type   `json:"eventType"`
	WorkspaceID string `json:"workspaceId"`
}

type patchWire struct {
	header
	RevisionNumber *int         `json:"revisionNumber"`
	File           *FilePayload `json:"file"`
}

type planWire struct {
	header
	Plan *Plan `json:"plan"`
}

type revisionWire struct {
	header
	RevisionNumber *int `json:"revisionNumber"`
	Incomplete     bool `json:"incomplete"`
}

type renderWire struct {
	header
	RenderID string `json:"renderId"`
	ChartID  string `json:"chartId,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Done     bool   `json:"done"`
}

// Decode parses one wire event.
func Decode(data []byte) (Event, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if h.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: %s: missing workspaceId", ErrInvalidEvent, h.EventType)
	}

	switch h.EventType {
	case TypePatchUpdated:
		var w patchWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, h.EventType, err)
		}
		if w.RevisionNumber == nil || *w.RevisionNumber < 0 {
			return nil, fmt.Errorf("%w: %s: missing revisionNumber", ErrInvalidEvent, h.EventType)
		}
		if w.File == nil {
			return nil, fmt.Errorf("%w: %s: missing file", ErrInvalidEvent, h.EventType)
		}
		if err := fsops.ValidateRelPath(w.File.Path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, h.EventType, err)
		}
		return PatchUpdated{Workspace: h.WorkspaceID, RevisionNumber: *w.RevisionNumber, File: *w.File}, nil

	case TypePlanUpdated:
		var w planWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, h.EventType, err)
		}
		if w.Plan == nil || w.Plan.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing plan id", ErrInvalidEvent, h.EventType)
		}
		return PlanUpdated{Workspace: h.WorkspaceID, Plan: *w.Plan}, nil

	case TypeRevisionCreated:
		var w revisionWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, h.EventType, err)
		}
		if w.RevisionNumber == nil || *w.RevisionNumber < 0 {
			return nil, fmt.Errorf("%w: %s: missing revisionNumber", ErrInvalidEvent, h.EventType)
		}
		return RevisionCreated{Workspace: h.WorkspaceID, RevisionNumber: *w.RevisionNumber, Incomplete: w.Incomplete}, nil

	case TypeRenderStream:
		var w renderWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, h.EventType, err)
		}
		if w.RenderID == "" {
			return nil, fmt.Errorf("%w: %s: missing renderId", ErrInvalidEvent, h.EventType)
		}
		return RenderStream{
			Workspace: h.WorkspaceID,
			RenderID:  w.RenderID,
			ChartID:   w.ChartID,
			Stdout:    w.Stdout,
			Stderr:    w.Stderr,
			Done:      w.Done,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, h.EventType)
	}
}

// Encode renders a wire event. Local variants cannot be encoded.
func Encode(e Event) ([]byte, error) {
	h := header{EventType: e.Type(), WorkspaceID: e.WorkspaceID()}

	var v any
	switch ev := e.(type) {
	case PatchUpdated:
		file := ev.File
		v = patchWire{header: h, RevisionNumber: &ev.RevisionNumber, File: &file}
	case PlanUpdated:
		plan := ev.Plan
		v = planWire{header: h, Plan: &plan}
	case RevisionCreated:
		v = revisionWire{header: h, RevisionNumber: &ev.RevisionNumber, Incomplete: ev.Incomplete}
	case RenderStream:
		v = renderWire{header: h, RenderID: ev.RenderID, ChartID: ev.ChartID, Stdout: ev.Stdout, Stderr: ev.Stderr, Done: ev.Done}
	default:
		return nil, fmt.Errorf("%w: %s is not a wire event", ErrInvalidEvent, e.Type())
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Type(), err)
	}
	return data, nil
}

// DecodeLines reads a JSON-lines backlog. Lines that fail to decode are
// skipped; their errors are combined into the returned error, so callers
// get every decodable event even when some lines are bad.
func DecodeLines(r io.Reader) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		out  []Event
		errs error
		n    int
	)
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to read events: %w", err))
	}
	return out, errs
}
