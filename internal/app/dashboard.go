package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"salesboard/internal/domain"
	"salesboard/internal/log"
)

const watcherBuffer = 16

// View is the complete state the dashboard renders.
type View struct {
	State     string             `json:"state"`
	Identity  string             `json:"identity,omitempty"`
	Anonymous bool               `json:"anonymous"`
	Form      domain.RecordInput `json:"form"`
	Error     string             `json:"error,omitempty"`
	Seq       uint64             `json:"seq"`
	Records   []domain.Record    `json:"records"`
	History   []HistoryRow       `json:"history"`
	Summary   []domain.Metric    `json:"summary"`
	Display   Presentation       `json:"display"`
	HasChart  bool               `json:"hasChart"`
}

// Dashboard wires a sync session to aggregation, presentation and chart
// rendering, and holds the form and error display state.
type Dashboard struct {
	session  *SyncSession
	store    domain.RecordStore
	renderer domain.ChartRenderer
	events   domain.EventPublisher
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	form     domain.RecordInput
	errMsg   string
	seq      uint64
	records  []domain.Record
	summary  []domain.Metric
	display  Presentation
	chart    domain.Chart
	watchers map[int]chan View
	nextW    int
	closed   bool
}

// NewDashboard creates a dashboard over session. renderer and events may
// be nil.
func NewDashboard(session *SyncSession, store domain.RecordStore, renderer domain.ChartRenderer, events domain.EventPublisher, logger *log.Logger) *Dashboard {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dashboard{
		session:  session,
		store:    store,
		renderer: renderer,
		events:   events,
		logger:   logger.WithComponent(log.ComponentDashboard),
		now:      time.Now,
		records:  []domain.Record{},
		summary:  []domain.Metric{},
		display:  Present(nil),
		watchers: make(map[int]chan View),
	}
}

// Start authenticates with token (empty for anonymous) and subscribes.
func (d *Dashboard) Start(ctx context.Context, token string) (domain.Identity, error) {
	id, err := d.session.Authenticate(ctx, token)
	if err != nil {
		d.setError(err)
		return domain.Identity{}, err
	}
	if err := d.Subscribe(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// Subscribe opens the live subscription of an authenticated session.
func (d *Dashboard) Subscribe(ctx context.Context) error {
	if err := d.session.Subscribe(ctx, d.applySnapshot, d.fail); err != nil {
		d.setError(err)
		return err
	}
	d.broadcast()
	return nil
}

// Session returns the underlying sync session.
func (d *Dashboard) Session() *SyncSession {
	return d.session
}

// Submit validates in and creates a record. The form keeps in until the
// store acknowledges the create, and is cleared only then. The new record
// appears through the subscription, not through Submit.
func (d *Dashboard) Submit(ctx context.Context, in domain.RecordInput) (string, error) {
	d.mu.Lock()
	d.form = in
	d.mu.Unlock()

	if state := d.session.State(); state != StateSubscribed {
		return "", d.reject(&domain.NotReadyError{State: state.String()})
	}

	fields, err := domain.ValidateInput(in)
	if err != nil {
		return "", d.reject(err)
	}

	id, err := d.store.Create(ctx, d.session.CollectionPath(), fields)
	if err != nil {
		d.logger.Error("create failed", log.FieldOperation, log.OpCreate, log.FieldError, err)
		return "", d.reject(&domain.PersistenceError{Op: "save", Err: err})
	}

	d.mu.Lock()
	d.form = domain.RecordInput{}
	d.errMsg = ""
	d.mu.Unlock()
	d.broadcast()

	d.publish(ctx, domain.RecordEvent{Type: domain.EventRecordCreated, RecordID: id, Fields: &fields})
	return id, nil
}

// Remove deletes a record by id. The row disappears when the subscription
// delivers the next snapshot.
func (d *Dashboard) Remove(ctx context.Context, id string) error {
	if state := d.session.State(); state != StateSubscribed {
		return d.reject(&domain.NotReadyError{State: state.String()})
	}
	if id == "" {
		return d.reject(&domain.ValidationError{Code: "missing_id", Message: "record id is required"})
	}

	if err := d.store.Delete(ctx, d.session.CollectionPath(), id); err != nil {
		d.logger.Error("delete failed", log.FieldOperation, log.OpDelete, log.FieldRecordID, id, log.FieldError, err)
		return d.reject(&domain.PersistenceError{Op: "delete", Err: err})
	}

	d.publish(ctx, domain.RecordEvent{Type: domain.EventRecordDeleted, RecordID: id})
	return nil
}

// SetForm replaces the form fields without submitting.
func (d *Dashboard) SetForm(in domain.RecordInput) {
	d.mu.Lock()
	d.form = in
	d.mu.Unlock()
	d.broadcast()
}

// DismissError clears the error display.
func (d *Dashboard) DismissError() {
	d.mu.Lock()
	d.errMsg = ""
	d.mu.Unlock()
	d.broadcast()
}

// View returns the current view.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

// Chart returns the currently rendered chart, or nil when there is none.
func (d *Dashboard) Chart() domain.Chart {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chart
}

// Watch streams views, starting with the current one. A watcher that falls
// behind is dropped and its channel closed. cancel stops watching.
func (d *Dashboard) Watch() (<-chan View, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan View, watcherBuffer)
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	id := d.nextW
	d.nextW++
	d.watchers[id] = ch
	ch <- d.viewLocked()

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if w, ok := d.watchers[id]; ok {
			delete(d.watchers, id)
			close(w)
		}
	}
}

// Close releases the session and the chart and ends every watcher.
func (d *Dashboard) Close() {
	d.session.Release()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.chart != nil {
		d.chart.Release()
		d.chart = nil
	}
	for id, w := range d.watchers {
		delete(d.watchers, id)
		close(w)
	}
}

// applySnapshot rederives summary, presentation and chart from a snapshot.
func (d *Dashboard) applySnapshot(snap domain.Snapshot) {
	summary := domain.Aggregate(snap.Records)
	display := Present(summary)

	d.mu.Lock()
	if d.closed || snap.Seq <= d.seq {
		d.mu.Unlock()
		return
	}
	d.seq = snap.Seq
	d.records = snap.Records
	d.summary = summary
	d.display = display

	// The previous chart is released before a replacement is drawn.
	if d.chart != nil {
		d.chart.Release()
		d.chart = nil
	}
	if d.renderer != nil && display.Chart.Len() > 0 {
		chart, err := d.renderer.Render(display.Chart)
		if err != nil {
			d.logger.Error("chart render failed", log.FieldOperation, log.OpRender, log.FieldError, err)
			d.errMsg = "could not draw chart: " + err.Error()
		} else {
			d.chart = chart
		}
	}
	d.mu.Unlock()

	d.logger.Debug("snapshot applied", log.FieldSeq, snap.Seq, log.FieldRecords, len(snap.Records))
	d.broadcast()
}

func (d *Dashboard) fail(err error) {
	d.setError(err)
}

func (d *Dashboard) reject(err error) error {
	d.setError(err)
	return err
}

// setError overwrites the single error slot.
func (d *Dashboard) setError(err error) {
	d.mu.Lock()
	d.errMsg = UserMessage(err)
	d.mu.Unlock()
	d.broadcast()
}

func (d *Dashboard) publish(ctx context.Context, ev domain.RecordEvent) {
	if d.events == nil {
		return
	}
	ev.Identity = d.session.Identity().ID
	ev.OccurredAt = d.now().UTC()
	if err := d.events.PublishRecordEvent(ctx, ev); err != nil {
		d.logger.Warn("failed to publish record event",
			log.FieldOperation, log.OpPublish,
			log.FieldRecordID, ev.RecordID,
			log.FieldError, err,
		)
	}
}

func (d *Dashboard) broadcast() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.watchers) == 0 {
		return
	}
	v := d.viewLocked()
	for id, w := range d.watchers {
		select {
		case w <- v:
		default:
			delete(d.watchers, id)
			close(w)
			d.logger.Warn("dropping slow watcher")
		}
	}
}

func (d *Dashboard) viewLocked() View {
	id := d.session.Identity()
	return View{
		State:     d.session.State().String(),
		Identity:  id.ID,
		Anonymous: id.Anonymous,
		Form:      d.form,
		Error:     d.errMsg,
		Seq:       d.seq,
		Records:   d.records,
		History:   PresentHistory(d.records),
		Summary:   d.summary,
		Display:   d.display,
		HasChart:  d.chart != nil,
	}
}

// UserMessage converts an error into the text shown in the error display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		verr *domain.ValidationError
		nerr *domain.NotReadyError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &nerr):
		return "still connecting, try again in a moment"
	default:
		return err.Error()
	}
}
