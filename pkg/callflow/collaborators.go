package callflow

// EvidenceLedger is the evidence-cataloguing collaborator. The engine
// reports auto-discovered evidence on segment entry and checks discovery
// when filtering selectable responses. It never reaches past this interface.
type EvidenceLedger interface {
	ReportDiscovered(evidenceID string)
	IsDiscovered(evidenceID string) bool
	OnDiscovered(fn func(evidenceID string))
}

// TrustGraph is the trust-relationship collaborator. Response selection
// forwards trust deltas here; the engine never stores trust itself.
type TrustGraph interface {
	ApplyDelta(from, to string, delta int, reason string)
}

// WorldStateTracker owns the sim clock and the scenario-end signal. The
// engine polls CheckEndingConditions between calls so the world can cut a
// shift short from outside the call flow.
type WorldStateTracker interface {
	CurrentTimeMinutes() int
	CheckEndingConditions() (endingID string, ok bool)
	ScenarioEnded(endingID string)
	OnScenarioEnded(fn func(endingID string))
}

// MemoryEvidenceLedger is an in-memory EvidenceLedger. Discovery callbacks
// fan out synchronously, single-threaded.
type MemoryEvidenceLedger struct {
	discovered map[string]bool
	order      []string
	callbacks  []func(string)
}

var _ EvidenceLedger = (*MemoryEvidenceLedger)(nil)

func NewMemoryEvidenceLedger() *MemoryEvidenceLedger {
	return &MemoryEvidenceLedger{discovered: make(map[string]bool)}
}

// ReportDiscovered records evidence; re-reporting is a no-op and does not
// re-fire callbacks.
func (l *MemoryEvidenceLedger) ReportDiscovered(evidenceID string) {
	if l.discovered[evidenceID] {
		return
	}
	l.discovered[evidenceID] = true
	l.order = append(l.order, evidenceID)
	for _, fn := range l.callbacks {
		fn(evidenceID)
	}
}

func (l *MemoryEvidenceLedger) IsDiscovered(evidenceID string) bool {
	return l.discovered[evidenceID]
}

func (l *MemoryEvidenceLedger) OnDiscovered(fn func(evidenceID string)) {
	l.callbacks = append(l.callbacks, fn)
}

// Discovered returns all discovered evidence IDs in discovery order.
func (l *MemoryEvidenceLedger) Discovered() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Import pre-marks evidence as discovered, used when restoring a session.
func (l *MemoryEvidenceLedger) Import(evidenceIDs []string) {
	for _, id := range evidenceIDs {
		if !l.discovered[id] {
			l.discovered[id] = true
			l.order = append(l.order, id)
		}
	}
}

// TrustChange is one recorded trust adjustment.
type TrustChange struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// MemoryTrustGraph is an in-memory TrustGraph that keeps running levels
// per directed pair plus the full change log.
type MemoryTrustGraph struct {
	levels  map[string]int
	changes []TrustChange
}

var _ TrustGraph = (*MemoryTrustGraph)(nil)

func NewMemoryTrustGraph() *MemoryTrustGraph {
	return &MemoryTrustGraph{levels: make(map[string]int)}
}

func (g *MemoryTrustGraph) ApplyDelta(from, to string, delta int, reason string) {
	g.levels[from+"\x00"+to] += delta
	g.changes = append(g.changes, TrustChange{From: from, To: to, Delta: delta, Reason: reason})
}

// Level returns the accumulated trust from one party toward another.
func (g *MemoryTrustGraph) Level(from, to string) int {
	return g.levels[from+"\x00"+to]
}

// Changes returns the full change log in application order.
func (g *MemoryTrustGraph) Changes() []TrustChange {
	out := make([]TrustChange, len(g.changes))
	copy(out, g.changes)
	return out
}

// SimWorld is an in-memory WorldStateTracker driven by explicit Advance
// calls; suspension is purely logical, there is no wall-clock dependency.
type SimWorld struct {
	minutes      int
	forcedEnding string
	callbacks    []func(string)
}

var _ WorldStateTracker = (*SimWorld)(nil)

func NewSimWorld(startMinutes int) *SimWorld {
	return &SimWorld{minutes: startMinutes}
}

func (w *SimWorld) CurrentTimeMinutes() int { return w.minutes }

// Advance moves the sim clock forward and returns the new time.
func (w *SimWorld) Advance(minutes int) int {
	if minutes > 0 {
		w.minutes += minutes
	}
	return w.minutes
}

// SetTime jumps the clock to an absolute value, used when restoring a session.
func (w *SimWorld) SetTime(minutes int) { w.minutes = minutes }

// ForceEnding arms an ending the world will report on the next
// CheckEndingConditions poll, ending the shift ahead of the call list.
func (w *SimWorld) ForceEnding(endingID string) { w.forcedEnding = endingID }

func (w *SimWorld) CheckEndingConditions() (string, bool) {
	return w.forcedEnding, w.forcedEnding != ""
}

func (w *SimWorld) ScenarioEnded(endingID string) {
	for _, fn := range w.callbacks {
		fn(endingID)
	}
}

func (w *SimWorld) OnScenarioEnded(fn func(endingID string)) {
	w.callbacks = append(w.callbacks, fn)
}
