package state

import "time"

// File is a single chart or workspace file.
type File struct {
	// ID is the opaque, stable identifier assigned at creation
	ID string `json:"id"`

	// RevisionNumber is the workspace revision the committed content belongs to
	RevisionNumber int `json:"revisionNumber"`

	// ChartID is the owning chart, empty for loose files
	ChartID string `json:"chartId,omitempty"`

	// Path is slash-separated and relative to the chart or workspace root
	Path string `json:"filePath"`

	// Content is the committed, authoritative text
	Content string `json:"content"`

	// ContentPending is the proposed replacement awaiting accept or reject.
	// Nil means no pending change. It holds either full text or a diff.
	ContentPending *string `json:"contentPending,omitempty"`
}

// HasPending reports whether the file has a pending change.
func (f File) HasPending() bool {
	return f.ContentPending != nil
}

// Pending returns the pending text, or "" when there is none.
func (f File) Pending() string {
	if f.ContentPending == nil {
		return ""
	}
	return *f.ContentPending
}

// Chart is a named, flat grouping of files.
type Chart struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	RevisionNumber int    `json:"revisionNumber"`
	Files          []File `json:"files"`
}

// Workspace is the aggregate root owning charts and loose files.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// CurrentRevisionNumber is the latest finalized revision
	CurrentRevisionNumber int `json:"currentRevisionNumber"`

	// IncompleteRevisionNumber is set while a revision is still being generated
	IncompleteRevisionNumber *int `json:"incompleteRevisionNumber,omitempty"`

	// Files are the loose files not in any chart
	Files []File `json:"files"`

	Charts []Chart `json:"charts"`
}

// Snapshot is the file tree captured before pending content was first
// applied in a revision cycle.
type Snapshot struct {
	RevisionNumber int       `json:"revisionNumber"`
	CapturedAt     time.Time `json:"capturedAt"`
	Files          []File    `json:"files"`
	Charts         []Chart   `json:"charts"`
}

// Baseline returns the committed content a file had when the snapshot was
// taken, matching by id first and path second.
func (s *Snapshot) Baseline(id, chartID, path string) (string, bool) {
	if s == nil {
		return "", false
	}

	var byPath *File
	visit := func(f *File) bool {
		if id != "" && f.ID == id {
			return true
		}
		if byPath == nil && f.Path == path && f.ChartID == chartID {
			byPath = f
		}
		return false
	}

	for i := range s.Files {
		if visit(&s.Files[i]) {
			return s.Files[i].Content, true
		}
	}
	for c := range s.Charts {
		for i := range s.Charts[c].Files {
			if visit(&s.Charts[c].Files[i]) {
				return s.Charts[c].Files[i].Content, true
			}
		}
	}
	if byPath != nil {
		return byPath.Content, true
	}
	return "", false
}
