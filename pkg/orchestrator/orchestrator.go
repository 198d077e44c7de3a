// Package orchestrator owns the pool of agent loops. It exposes the
// operator control surface (scale, pause, resume, stop, emergency stop,
// status) and the narrow update API through which each agent loop mutates
// its shared record. Control operations act on the shared records under
// one mutex and are safe to invoke concurrently with agent execution.
package orchestrator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"hive/pkg/bus"
	"hive/pkg/protocol"
	"hive/pkg/queue"
	"hive/pkg/session"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	InitialInstances int           // agents spawned by Start (default 0)
	IdleSleep        time.Duration // backoff between idle polls (default 5s)
	StopGrace        time.Duration // graceful stop budget (default 10s)
	IdeationLowWater int           // queue depth below which idle agents ideate (default protocol.QueueLowWater)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.IdleSleep == 0 {
		out.IdleSleep = 5 * time.Second
	}
	if out.StopGrace == 0 {
		out.StopGrace = 10 * time.Second
	}
	if out.IdeationLowWater == 0 {
		out.IdeationLowWater = protocol.QueueLowWater
	}
	return out
}

// agent is one live slot: the shared record plus the handles needed to
// stop its loop. The record is guarded by Orchestrator.mu; prevState
// remembers what Paused should resume to.
type agent struct {
	rec       protocol.AgentRecord
	prevState protocol.AgentState

	cancel   context.CancelFunc // hard termination, takes effect anywhere
	stopCh   chan struct{}      // graceful stop, observed at suspension points
	doneCh   chan struct{}      // closed when the loop goroutine exits
	stopOnce sync.Once
}

func (a *agent) signalStop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Orchestrator reconciles the live agent pool toward the operator's
// desired instance count.
type Orchestrator struct {
	cfg       Config
	claims    *queue.ClaimStore
	conflicts *queue.ConflictQueue
	sessions  *session.Manager
	budget    BudgetReader
	source    WorkSource
	bus       *bus.Bus
	recorder  TransitionRecorder

	mu      sync.Mutex
	started bool
	stopped bool // set by EmergencyStop so Stop stays a no-op
	desired int
	agents  map[int]*agent

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
	// logf reports control-plane warnings. Defaults to log.Printf.
	logf func(format string, args ...any)
}

// New creates an Orchestrator. All collaborators are injected; nothing is
// looked up ambiently. It does NOT spawn agents; call Start.
func New(cfg Config, claims *queue.ClaimStore, conflicts *queue.ConflictQueue,
	sessions *session.Manager, budgetReader BudgetReader, source WorkSource,
	eventBus *bus.Bus, recorder TransitionRecorder) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		claims:     claims,
		conflicts:  conflicts,
		sessions:   sessions,
		budget:     budgetReader,
		source:     source,
		bus:        eventBus,
		recorder:   recorder,
		agents:     make(map[int]*agent),
		rootCtx:    ctx,
		rootCancel: cancel,
		nowFunc:    time.Now,
		logf:       log.Printf,
	}
}

// Start brings the pool up to the configured initial instance count. It is
// idempotent: a second call spawns nothing and logs a warning.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		o.logf("orchestrator: start called while already started; ignoring")
		return
	}
	o.started = true
	o.stopped = false
	o.desired = o.cfg.InitialInstances
	o.mu.Unlock()

	o.reconcile()
}

// SetDesiredInstances sets the operator's target pool size and reconciles
// toward it. Negative values are rejected without any state change;
// setting the current count is a no-op.
func (o *Orchestrator) SetDesiredInstances(n int) {
	if n < 0 {
		o.logf("orchestrator: rejecting negative desired instances %d", n)
		return
	}

	o.mu.Lock()
	if n == o.desired && n == len(o.agents) {
		o.mu.Unlock()
		return
	}
	o.desired = n
	o.mu.Unlock()

	o.reconcile()
}

// reconcile spawns or removes agents until the live set matches desired.
// Scale-up fills the lowest unused ids first; scale-down removes the
// highest-numbered agents first so senior agents survive.
func (o *Orchestrator) reconcile() {
	for {
		o.mu.Lock()
		if !o.started {
			o.mu.Unlock()
			return
		}
		live := len(o.agents)
		switch {
		case live < o.desired:
			o.spawnLocked(o.lowestUnusedID())
			o.mu.Unlock()
		case live > o.desired:
			id := o.highestLiveID()
			a := o.agents[id]
			o.mu.Unlock()
			o.retire(id, a)
		default:
			o.mu.Unlock()
			return
		}
	}
}

// lowestUnusedID returns the smallest positive id not in the live set.
// Caller must hold o.mu.
func (o *Orchestrator) lowestUnusedID() int {
	for id := 1; ; id++ {
		if _, used := o.agents[id]; !used {
			return id
		}
	}
}

// highestLiveID returns the largest live id. Caller must hold o.mu and
// the pool must be non-empty.
func (o *Orchestrator) highestLiveID() int {
	max := 0
	for id := range o.agents {
		if id > max {
			max = id
		}
	}
	return max
}

// spawnLocked creates the record and starts the loop goroutine for id.
// Caller must hold o.mu.
func (o *Orchestrator) spawnLocked(id int) *agent {
	ctx, cancel := context.WithCancel(o.rootCtx)
	a := &agent{
		rec: protocol.AgentRecord{
			ID:            id,
			State:         protocol.AgentIdle,
			LastHeartbeat: o.nowFunc(),
		},
		cancel: cancel,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	o.agents[id] = a
	o.persistLocked(a)

	go o.runLoop(ctx, a)
	return a
}

// retire gracefully stops one agent's loop and removes it from the pool.
func (o *Orchestrator) retire(id int, a *agent) {
	a.signalStop()
	select {
	case <-a.doneCh:
	case <-time.After(o.cfg.StopGrace):
		a.cancel()
		<-a.doneCh
	}

	o.mu.Lock()
	o.transitionLocked(a, protocol.AgentStopped)
	delete(o.agents, id)
	o.mu.Unlock()
}

// Stop gracefully signals every live agent to finish its current unit of
// work and exit, then clears the live set. Calling it again afterwards is
// a safe no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped || (!o.started && len(o.agents) == 0) {
		o.stopped = true
		o.started = false
		o.mu.Unlock()
		return
	}
	o.started = false
	agents := make(map[int]*agent, len(o.agents))
	for id, a := range o.agents {
		agents[id] = a
	}
	o.mu.Unlock()

	for _, a := range agents {
		a.signalStop()
	}

	deadline := time.After(o.cfg.StopGrace)
	for _, a := range agents {
		select {
		case <-a.doneCh:
		case <-deadline:
			a.cancel()
			<-a.doneCh
		}
	}

	o.mu.Lock()
	for id, a := range o.agents {
		o.transitionLocked(a, protocol.AgentStopped)
		delete(o.agents, id)
	}
	o.stopped = true
	o.mu.Unlock()
}

// EmergencyStop immediately clears every agent from the live set without
// waiting for suspension points. It is safe to call before Start, and
// Stop afterwards remains a no-op.
func (o *Orchestrator) EmergencyStop() {
	o.rootCancel()

	o.mu.Lock()
	for id, a := range o.agents {
		a.cancel()
		a.signalStop()
		o.transitionLocked(a, protocol.AgentStopped)
		delete(o.agents, id)
	}
	o.started = false
	o.stopped = true
	// Fresh root context so a later Start can spawn again.
	o.rootCtx, o.rootCancel = context.WithCancel(context.Background())
	o.mu.Unlock()
}

// PauseAgent pauses exactly one agent. Unknown ids are logged no-ops.
func (o *Orchestrator) PauseAgent(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.agents[id]
	if !ok {
		o.logf("orchestrator: pause for unknown agent %d; ignoring", id)
		return
	}
	if a.rec.State == protocol.AgentPaused {
		return
	}
	a.prevState = a.rec.State
	o.transitionLocked(a, protocol.AgentPaused)
}

// ResumeAgent resumes exactly one agent to the state it held before
// pausing, or Idle if that is unknown. Unknown ids are logged no-ops.
func (o *Orchestrator) ResumeAgent(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.agents[id]
	if !ok {
		o.logf("orchestrator: resume for unknown agent %d; ignoring", id)
		return
	}
	if a.rec.State != protocol.AgentPaused {
		return
	}
	next := a.prevState
	if !next.Live() || next == protocol.AgentPaused {
		next = protocol.AgentIdle
	}
	a.prevState = ""
	o.transitionLocked(a, next)
}

// PauseAll pauses every live agent; an empty pool resolves without error.
func (o *Orchestrator) PauseAll() {
	for _, id := range o.LiveIDs() {
		o.PauseAgent(id)
	}
}

// ResumeAll resumes every live agent; an empty pool resolves without
// error.
func (o *Orchestrator) ResumeAll() {
	for _, id := range o.LiveIDs() {
		o.ResumeAgent(id)
	}
}

// RestartAgent stops the loop for id if running and spawns a fresh loop on
// the same id, clearing error state but preserving work-in-progress
// fields. Used by the emergency controls.
func (o *Orchestrator) RestartAgent(id int) error {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return &protocol.AgentNotFoundError{AgentID: id}
	}
	prior := a.rec
	o.mu.Unlock()

	o.retire(id, a)

	o.mu.Lock()
	defer o.mu.Unlock()
	fresh := o.spawnLocked(id)
	// Preserve work-in-progress fields; error state starts clean.
	fresh.rec.ProjectNumber = prior.ProjectNumber
	fresh.rec.IssueNumber = prior.IssueNumber
	fresh.rec.Phase = prior.Phase
	fresh.rec.BranchName = prior.BranchName
	fresh.rec.TasksCompleted = prior.TasksCompleted
	o.persistLocked(fresh)
	return nil
}

// ResetAgent stops the loop for id if live and, when the pool is running,
// spawns a fresh loop on the same id with a completely clean record. It
// returns whether the id was live. The caller is responsible for claim
// release and session-record deletion.
func (o *Orchestrator) ResetAgent(id int) bool {
	o.mu.Lock()
	a, wasLive := o.agents[id]
	o.mu.Unlock()

	if wasLive {
		o.retire(id, a)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started && len(o.agents) < o.desired {
		o.spawnLocked(id)
	}
	return wasLive
}

// LiveIDs snapshots the live agent ids in ascending order.
func (o *Orchestrator) LiveIDs() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]int, 0, len(o.agents))
	for id := range o.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Status returns a point-in-time snapshot of the pool plus the budget
// collaborator's numbers.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		DesiredInstances: o.desired,
		Agents:           make([]AgentStatus, 0, len(o.agents)),
	}
	for _, a := range o.agents {
		st.Agents = append(st.Agents, AgentStatus{ID: a.rec.ID, State: a.rec.State, Phase: a.rec.Phase})
		if a.rec.BranchName != "" {
			st.ActiveWorktrees++
		}
	}
	o.mu.Unlock()

	sort.Slice(st.Agents, func(i, j int) bool { return st.Agents[i].ID < st.Agents[j].ID })

	if o.budget != nil {
		if b, err := o.budget.Status(); err == nil {
			st.Budget = b
		} else {
			o.logf("orchestrator: budget status unavailable: %v", err)
		}
	}
	return st
}

// AgentRecord returns a copy of the shared record for id.
func (o *Orchestrator) AgentRecord(id int) (protocol.AgentRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.agents[id]
	if !ok {
		return protocol.AgentRecord{}, false
	}
	return a.rec, true
}

// updateAgent is the narrow API through which the loop mutates its shared
// record. fn runs under the pool mutex; the result is persisted to the
// session store.
func (o *Orchestrator) updateAgent(a *agent, fn func(rec *protocol.AgentRecord)) {
	o.mu.Lock()
	fn(&a.rec)
	o.persistLocked(a)
	o.mu.Unlock()
}

// transitionLocked moves a to state, recording the transition and
// persisting the record. Caller must hold o.mu.
func (o *Orchestrator) transitionLocked(a *agent, state protocol.AgentState) {
	from := a.rec.State
	if from == state {
		return
	}
	a.rec.State = state
	o.persistLocked(a)
	if o.recorder != nil {
		o.recorder.RecordTransition(protocol.StateTransition{
			AgentID:       a.rec.ID,
			FromState:     from,
			ToState:       state,
			Timestamp:     o.nowFunc(),
			ProjectNumber: a.rec.ProjectNumber,
		})
	}
}

// persistLocked writes the shared record to the session store. Session
// write failures are logged, not fatal: the in-memory pool stays
// authoritative. Caller must hold o.mu.
func (o *Orchestrator) persistLocked(a *agent) {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.Save(a.rec); err != nil {
		o.logf("orchestrator: persist agent %d: %v", a.rec.ID, err)
	}
}

// isPaused reports whether a is paused. Used by the loop at suspension
// points.
func (o *Orchestrator) isPaused(a *agent) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return a.rec.State == protocol.AgentPaused
}
