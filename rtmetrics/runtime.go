package rtmetrics

// RuntimeMetrics bundles the instruments greenproc's scheduler and
// process layer record into, built on top of the generic Provider/
// Counter/UpDownCounter/Histogram interfaces above. A nil *RuntimeMetrics
// is valid and records nothing, so callers can leave metrics unset
// without special-casing every call site.
type RuntimeMetrics struct {
	readyQueueDepth UpDownCounter
	tasksSpawned    Counter
	tasksCanceled   Counter
	processSpawned  Counter
	mailboxPeak     Histogram
	exitCascades    Counter
}

// NewRuntimeMetrics constructs the fixed set of instruments greenproc
// records into, rooted at p.
func NewRuntimeMetrics(p Provider) *RuntimeMetrics {
	return &RuntimeMetrics{
		readyQueueDepth: p.UpDownCounter("greenproc_ready_queue_depth", WithUnit("1"), WithDescription("tasks currently on a scheduler's ready queue")),
		tasksSpawned:    p.Counter("greenproc_tasks_spawned_total", WithUnit("1")),
		tasksCanceled:   p.Counter("greenproc_tasks_canceled_total", WithUnit("1")),
		processSpawned:  p.Counter("greenproc_processes_spawned_total", WithUnit("1")),
		mailboxPeak:     p.Histogram("greenproc_mailbox_peak_size", WithUnit("1"), WithDescription("peak mailbox occupancy observed per send")),
		exitCascades:    p.Counter("greenproc_exit_cascades_total", WithUnit("1"), WithDescription("links that propagated a non-normal exit to a peer")),
	}
}

func (m *RuntimeMetrics) TaskSpawned() {
	if m == nil {
		return
	}
	m.tasksSpawned.Add(1)
	m.readyQueueDepth.Add(1)
}

func (m *RuntimeMetrics) TaskDequeued() {
	if m == nil {
		return
	}
	m.readyQueueDepth.Add(-1)
}

func (m *RuntimeMetrics) TaskRequeued() {
	if m == nil {
		return
	}
	m.readyQueueDepth.Add(1)
}

func (m *RuntimeMetrics) TaskCanceled() {
	if m == nil {
		return
	}
	m.tasksCanceled.Add(1)
}

func (m *RuntimeMetrics) ProcessSpawned() {
	if m == nil {
		return
	}
	m.processSpawned.Add(1)
}

func (m *RuntimeMetrics) MailboxSize(n int) {
	if m == nil {
		return
	}
	m.mailboxPeak.Record(float64(n))
}

func (m *RuntimeMetrics) ExitCascaded() {
	if m == nil {
		return
	}
	m.exitCascades.Add(1)
}
