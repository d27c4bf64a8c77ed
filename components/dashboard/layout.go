package dashboard

import (
	"slices"
	"sync"
)

// DefaultGridColumns is the column count used to derive grid positions.
const DefaultGridColumns = 4

// DragPhase names the state of the reorder gesture.
type DragPhase string

const (
	PhaseIdle       DragPhase = "idle"
	PhaseActive     DragPhase = "active"
	PhaseCommitting DragPhase = "committing"
)

// DragState is one of DragIdle, DragActive or DragCommitting.
type DragState interface {
	Phase() DragPhase
	dragState()
}

// DragIdle means no gesture is in progress.
type DragIdle struct{}

// DragActive holds the private optimistic list while the pointer is down.
type DragActive struct {
	Snapshot  []MetricBinding
	DraggedID int64
}

// DragCommitting holds the dropped order while the batch is in flight.
type DragCommitting struct {
	Snapshot []MetricBinding
	commit   uint64
}

func (DragIdle) Phase() DragPhase       { return PhaseIdle }
func (DragActive) Phase() DragPhase     { return PhaseActive }
func (DragCommitting) Phase() DragPhase { return PhaseCommitting }

func (DragIdle) dragState()       {}
func (DragActive) dragState()     {}
func (DragCommitting) dragState() {}

// PositionUpdate is one (metric, sort order, grid position) triple.
type PositionUpdate struct {
	MetricID  int64        `json:"metricId"`
	SortOrder int          `json:"sortOrder"`
	Position  GridPosition `json:"gridPosition"`
}

// PositionBatch is committed atomically.
type PositionBatch []PositionUpdate

// BulkUpdate converts the batch to the backend payload.
func (b PositionBatch) BulkUpdate(dashboardID int64) BulkMetricUpdate {
	updates := make([]MetricUpdate, len(b))
	for i, u := range b {
		sort := u.SortOrder
		pos := u.Position
		updates[i] = MetricUpdate{
			DashboardID: dashboardID,
			MetricID:    u.MetricID,
			SortOrder:   &sort,
			Position:    &pos,
		}
	}
	return BulkMetricUpdate{DashboardID: dashboardID, Metrics: updates}
}

// LayoutEngine runs the drag-to-reorder state machine. It never touches the
// authoritative binding list; callers pass it in and get copies back.
type LayoutEngine struct {
	mu      sync.Mutex
	columns int
	enabled bool
	state   DragState
	commits uint64
}

// NewLayoutEngine builds an engine. Non-positive columns fall back to
// DefaultGridColumns.
func NewLayoutEngine(columns int, enabled bool) *LayoutEngine {
	if columns <= 0 {
		columns = DefaultGridColumns
	}
	return &LayoutEngine{columns: columns, enabled: enabled, state: DragIdle{}}
}

// Columns returns the grid column count.
func (e *LayoutEngine) Columns() int {
	return e.columns
}

// Enabled reports whether drag-and-drop is switched on.
func (e *LayoutEngine) Enabled() bool {
	return e.enabled
}

// State returns the current drag state.
func (e *LayoutEngine) State() DragState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Begin captures an optimistic copy of the visible list and starts dragging draggedID.
func (e *LayoutEngine) Begin(authoritative []MetricBinding, draggedID int64) error {
	if !e.enabled {
		return ErrReorderDisabled
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, idle := e.state.(DragIdle); !idle {
		return ErrDragInProgress
	}
	visible := VisibleBindings(authoritative)
	if indexOfBinding(visible, draggedID) < 0 {
		return ErrMetricNotBound
	}
	e.state = DragActive{Snapshot: visible, DraggedID: draggedID}
	return nil
}

// Hover moves the dragged binding to the hovered binding's current index.
// Hovering the dragged card itself is a no-op.
func (e *LayoutEngine) Hover(targetID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	active, ok := e.state.(DragActive)
	if !ok {
		return ErrNoActiveDrag
	}
	if targetID == active.DraggedID {
		return nil
	}
	if indexOfBinding(active.Snapshot, targetID) < 0 {
		return ErrMetricNotBound
	}
	active.Snapshot = moveBinding(active.Snapshot, active.DraggedID, targetID)
	e.state = active
	return nil
}

// Drop ends the gesture and returns the batch to commit. The engine stays in
// the committing phase until Settle.
func (e *LayoutEngine) Drop() (PositionBatch, error) {
	batch, _, err := e.drop()
	return batch, err
}

// drop is Drop plus the id of the commit it started, for settleCommit.
func (e *LayoutEngine) drop() (PositionBatch, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	active, ok := e.state.(DragActive)
	if !ok {
		return nil, 0, ErrNoActiveDrag
	}
	e.commits++
	e.state = DragCommitting{Snapshot: active.Snapshot, commit: e.commits}
	return DerivePositions(active.Snapshot, e.columns), e.commits, nil
}

// Settle discards any gesture or optimistic list, whatever its phase.
func (e *LayoutEngine) Settle() {
	e.mu.Lock()
	e.state = DragIdle{}
	e.mu.Unlock()
}

// settleCommit returns to idle only while commit is still the one in flight.
// A gesture begun after the commit was settled elsewhere is left alone.
func (e *LayoutEngine) settleCommit(commit uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	committing, ok := e.state.(DragCommitting)
	if !ok || committing.commit != commit {
		return false
	}
	e.state = DragIdle{}
	return true
}

// Cancel abandons an active drag.
func (e *LayoutEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.state.(DragActive); !ok {
		return ErrNoActiveDrag
	}
	e.state = DragIdle{}
	return nil
}

// Visible returns the list a view should render: the optimistic copy while a
// gesture is in flight, the sorted visible authoritative bindings otherwise.
func (e *LayoutEngine) Visible(authoritative []MetricBinding) []MetricBinding {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	switch s := state.(type) {
	case DragActive:
		return cloneBindings(s.Snapshot)
	case DragCommitting:
		return cloneBindings(s.Snapshot)
	default:
		return VisibleBindings(authoritative)
	}
}

// DerivePositions assigns sort order = index and grid position
// (index div columns, index mod columns).
func DerivePositions(list []MetricBinding, columns int) PositionBatch {
	if columns <= 0 {
		columns = DefaultGridColumns
	}
	batch := make(PositionBatch, len(list))
	for i, b := range list {
		batch[i] = PositionUpdate{
			MetricID:  b.ID,
			SortOrder: i,
			Position:  GridPositionFor(i, columns),
		}
	}
	return batch
}

// GridPositionFor maps a list index onto the grid.
func GridPositionFor(index, columns int) GridPosition {
	return GridPosition{Row: index / columns, Col: index % columns}
}

// SortBindings orders bindings by sort order. Equal sort orders keep their
// existing relative order.
func SortBindings(list []MetricBinding) []MetricBinding {
	out := cloneBindings(list)
	slices.SortStableFunc(out, func(a, b MetricBinding) int {
		return a.SortOrder - b.SortOrder
	})
	return out
}

// VisibleBindings returns the visible bindings in display order.
func VisibleBindings(list []MetricBinding) []MetricBinding {
	visible := make([]MetricBinding, 0, len(list))
	for _, b := range list {
		if b.Visible {
			visible = append(visible, b)
		}
	}
	return SortBindings(visible)
}

// ApplyOrder moves the bindings named in order to the front, in that order.
// Unknown ids are ignored and unnamed bindings keep their relative order.
func ApplyOrder(list []MetricBinding, order []int64) []MetricBinding {
	if len(order) == 0 {
		return cloneBindings(list)
	}
	index := make(map[int64]MetricBinding, len(list))
	for _, b := range list {
		index[b.ID] = b
	}
	result := make([]MetricBinding, 0, len(list))
	seen := make(map[int64]struct{}, len(order))
	for _, id := range order {
		if _, dup := seen[id]; dup {
			continue
		}
		if b, ok := index[id]; ok {
			result = append(result, b)
			seen[id] = struct{}{}
		}
	}
	for _, b := range list {
		if _, ok := seen[b.ID]; !ok {
			result = append(result, b)
		}
	}
	return cloneBindings(result)
}

// moveBinding splices dragged out and reinserts it at target's index.
func moveBinding(list []MetricBinding, draggedID, targetID int64) []MetricBinding {
	from := indexOfBinding(list, draggedID)
	to := indexOfBinding(list, targetID)
	if from < 0 || to < 0 || from == to {
		return list
	}
	out := cloneBindings(list)
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, moved)
}

func indexOfBinding(list []MetricBinding, id int64) int {
	return slices.IndexFunc(list, func(b MetricBinding) bool { return b.ID == id })
}
