package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"salesboard/internal/domain"
)

func newTestDashboard(t *testing.T) (*Dashboard, *fakeStore, *fakeRenderer, *fakePublisher) {
	t.Helper()
	store := &fakeStore{}
	renderer := &fakeRenderer{}
	events := &fakePublisher{}
	ids := &staticIdentities{byTok: map[string]string{"tok-a": "user-a"}}
	session := NewSyncSession(SessionConfig{Namespace: "acme"}, ids, store, nil)
	d := NewDashboard(session, store, renderer, events, nil)
	t.Cleanup(d.Close)
	return d, store, renderer, events
}

func startDashboard(t *testing.T, d *Dashboard) {
	t.Helper()
	if _, err := d.Start(context.Background(), "tok-a"); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func record(id string, minute int, dms, sales int64, spend, revenue string) domain.Record {
	return domain.Record{
		ID:         id,
		DMCount:    dms,
		AdSpend:    decimal.RequireFromString(spend),
		SalesCount: sales,
		Revenue:    decimal.RequireFromString(revenue),
		CreatedAt:  at(minute),
	}
}

func TestDashboard_SubmitBeforeSubscribed(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)

	in := domain.RecordInput{DMCount: "3"}
	_, err := d.Submit(context.Background(), in)
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("no write should be issued before subscription")
	}
	v := d.View()
	if v.Form != in || v.Error == "" {
		t.Fatalf("form should be kept and error shown: %+v", v)
	}
}

func TestDashboard_RemoveBeforeSubscribed(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)
	if err := d.Remove(context.Background(), "rec-1"); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatal("no delete should be issued before subscription")
	}
}

func TestDashboard_SubmitValidationKeepsForm(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)
	startDashboard(t, d)

	in := domain.RecordInput{DMCount: "0", AdSpend: "", SalesCount: "0", Revenue: "0"}
	_, err := d.Submit(context.Background(), in)
	if !errors.Is(err, domain.ErrAllZero) {
		t.Fatalf("expected ErrAllZero, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("invalid input must not reach the store")
	}
	v := d.View()
	if v.Form != in {
		t.Errorf("form = %+v; want %+v", v.Form, in)
	}
	if v.Error != domain.ErrAllZero.Message {
		t.Errorf("error = %q", v.Error)
	}
}

func TestDashboard_SubmitSuccessClearsForm(t *testing.T) {
	d, store, _, events := newTestDashboard(t)
	startDashboard(t, d)

	d.DismissError()
	_, _ = d.Submit(context.Background(), domain.RecordInput{DMCount: "-1"})
	if d.View().Error == "" {
		t.Fatal("expected a validation error first")
	}

	id, err := d.Submit(context.Background(), domain.RecordInput{DMCount: "10", AdSpend: "25.50"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "rec-1" {
		t.Errorf("id = %q", id)
	}
	if len(store.created) != 1 || store.created[0].DMCount != 10 || !store.created[0].AdSpend.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("unexpected create %+v", store.created)
	}
	v := d.View()
	if v.Form != (domain.RecordInput{}) {
		t.Errorf("form should be cleared, got %+v", v.Form)
	}
	if v.Error != "" {
		t.Errorf("error should be cleared, got %q", v.Error)
	}
	if len(v.Records) != 0 {
		t.Error("records only change through the subscription")
	}
	if len(events.events) != 1 || events.events[0].Type != domain.EventRecordCreated || events.events[0].Identity != "user-a" {
		t.Errorf("unexpected events %+v", events.events)
	}
}

func TestDashboard_SubmitStoreFailure(t *testing.T) {
	d, store, _, events := newTestDashboard(t)
	startDashboard(t, d)
	store.createErr = errors.New("quota exceeded")

	in := domain.RecordInput{SalesCount: "1", Revenue: "9.99"}
	_, err := d.Submit(context.Background(), in)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	v := d.View()
	if v.Form != in {
		t.Error("form must be kept after a failed write")
	}
	if v.Error != "could not save record: quota exceeded" {
		t.Errorf("error = %q", v.Error)
	}
	if len(events.events) != 0 {
		t.Error("no event for a failed write")
	}
}

func TestDashboard_PublishFailureDoesNotFailSubmit(t *testing.T) {
	d, _, _, events := newTestDashboard(t)
	startDashboard(t, d)
	events.err = errors.New("broker down")

	if _, err := d.Submit(context.Background(), domain.RecordInput{DMCount: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDashboard_RemoveFailureKeepsRow(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)
	startDashboard(t, d)
	store.lastSub().push(record("r1", 1, 5, 0, "0", "0"))
	if !waitFor(func() bool { return len(d.View().Records) == 1 }) {
		t.Fatal("snapshot not applied")
	}

	store.deleteErr = errors.New("permission denied")
	if err := d.Remove(context.Background(), "r1"); err == nil {
		t.Fatal("expected error")
	}
	v := d.View()
	if len(v.Records) != 1 {
		t.Error("row must remain after a failed delete")
	}
	if v.Error != "could not delete record: permission denied" {
		t.Errorf("error = %q", v.Error)
	}
}

func TestDashboard_RemoveIsNotOptimistic(t *testing.T) {
	d, store, _, events := newTestDashboard(t)
	startDashboard(t, d)
	store.lastSub().push(record("r1", 1, 5, 0, "0", "0"))
	if !waitFor(func() bool { return len(d.View().Records) == 1 }) {
		t.Fatal("snapshot not applied")
	}

	if err := d.Remove(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.View().Records) != 1 {
		t.Error("row disappears only with the next snapshot")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "r1" {
		t.Errorf("deleted = %v", store.deleted)
	}
	if len(events.events) != 1 || events.events[0].Type != domain.EventRecordDeleted {
		t.Errorf("unexpected events %+v", events.events)
	}

	store.lastSub().push()
	if !waitFor(func() bool { return len(d.View().Records) == 0 }) {
		t.Fatal("row should go away with the snapshot")
	}
}

func TestDashboard_SnapshotDerivesSummaryAndChart(t *testing.T) {
	d, store, renderer, _ := newTestDashboard(t)
	startDashboard(t, d)

	sub := store.lastSub()
	sub.push(
		record("a", 2, 10, 0, "5", "0"),
		record("b", 1, 5, 1, "10", "-10"),
	)
	if !waitFor(func() bool { return d.View().Seq == 1 }) {
		t.Fatal("snapshot not applied")
	}

	v := d.View()
	if v.Records[0].ID != "b" {
		t.Errorf("records not ordered: first is %q", v.Records[0].ID)
	}
	if len(v.Summary) != 5 {
		t.Fatalf("summary = %+v", v.Summary)
	}
	if !v.HasChart || len(renderer.all()) != 1 {
		t.Fatal("expected one chart")
	}
	if len(v.History) != 2 || !v.History[0].Loss {
		t.Errorf("history = %+v", v.History)
	}

	sub.push(record("a", 2, 10, 0, "5", "0"))
	if !waitFor(func() bool { return d.View().Seq == 2 }) {
		t.Fatal("second snapshot not applied")
	}
	charts := renderer.all()
	if len(charts) != 2 {
		t.Fatalf("expected a second render, got %d", len(charts))
	}
	if charts[0].releaseCount() != 1 {
		t.Error("previous chart must be released before a new one is drawn")
	}

	sub.push()
	if !waitFor(func() bool { return d.View().Seq == 3 }) {
		t.Fatal("empty snapshot not applied")
	}
	v = d.View()
	if v.HasChart || len(v.Summary) != 0 || v.Summary == nil {
		t.Errorf("empty collection should clear chart and summary: %+v", v)
	}
	if charts[1].releaseCount() != 1 {
		t.Error("chart must be released when there is nothing to draw")
	}
	if len(renderer.all()) != 2 {
		t.Error("no chart should be drawn for an empty summary")
	}
}

func TestDashboard_SubscriptionFailureShowsError(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)
	startDashboard(t, d)

	store.lastSub().failWith(errors.New("network lost"))
	if !waitFor(func() bool { return d.View().State == StateError.String() }) {
		t.Fatal("expected error state")
	}
	if d.View().Error == "" {
		t.Fatal("expected error message")
	}
	if _, err := d.Submit(context.Background(), domain.RecordInput{DMCount: "1"}); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady after failure, got %v", err)
	}
}

func TestDashboard_ErrorSlotKeepsLatest(t *testing.T) {
	d, _, _, _ := newTestDashboard(t)
	startDashboard(t, d)

	_, _ = d.Submit(context.Background(), domain.RecordInput{})
	_, _ = d.Submit(context.Background(), domain.RecordInput{DMCount: "-2"})
	if got := d.View().Error; got != domain.ErrNegativeCount.Message {
		t.Fatalf("error = %q", got)
	}
	d.DismissError()
	if d.View().Error != "" {
		t.Fatal("error should be dismissed")
	}
}

func TestDashboard_WatchReceivesViews(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)
	startDashboard(t, d)

	views, cancel := d.Watch()
	defer cancel()

	first := <-views
	if first.State != StateSubscribed.String() {
		t.Fatalf("first view state = %q", first.State)
	}

	store.lastSub().push(record("a", 1, 1, 0, "0", "0"))
	for v := range views {
		if v.Seq == 1 {
			return
		}
	}
	t.Fatal("watch channel closed before the snapshot arrived")
}

func TestDashboard_SlowWatcherDropped(t *testing.T) {
	d, _, _, _ := newTestDashboard(t)
	startDashboard(t, d)

	views, _ := d.Watch()
	for i := 0; i < watcherBuffer+1; i++ {
		d.DismissError()
	}

	n := 0
	for range views {
		n++
	}
	if n != watcherBuffer {
		t.Fatalf("expected %d buffered views before drop, got %d", watcherBuffer, n)
	}
}

func TestDashboard_CloseEndsWatchers(t *testing.T) {
	d, store, _, _ := newTestDashboard(t)
	startDashboard(t, d)
	views, _ := d.Watch()
	<-views

	d.Close()
	if _, ok := <-views; ok {
		t.Fatal("expected closed channel")
	}
	if !store.lastSub().isClosed() {
		t.Fatal("subscription should be released")
	}
	if d.View().State != StateClosed.String() {
		t.Fatalf("state = %q", d.View().State)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{domain.ErrAllZero, "enter at least one non-zero value"},
		{&domain.NotReadyError{State: "authenticating"}, "still connecting, try again in a moment"},
		{&domain.PersistenceError{Op: "save", Err: errors.New("x")}, "could not save record: x"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q; want %q", tt.err, got, tt.want)
		}
	}
}
