package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestPendingCallsInsertRefusesDuplicateID(t *testing.T) {
	p := NewPendingCalls()
	if _, err := p.Insert(1); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if _, err := p.Insert(1); err == nil {
		t.Fatal("expected an error inserting an already-live id")
	}
}

func TestPendingCallsCompleteResolvesAndRemoves(t *testing.T) {
	p := NewPendingCalls()
	ch, err := p.Insert(9)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if ok := p.Complete(9, Result{Value: []byte("ok")}); !ok {
		t.Fatal("expected Complete to find the pending entry")
	}
	res := <-ch
	if string(res.Value) != "ok" {
		t.Errorf("mismatch: got %q", res.Value)
	}
	if p.Len() != 0 {
		t.Errorf("expected the entry to be removed, Len()=%d", p.Len())
	}
}

func TestPendingCallsCompleteDropsLateOrDuplicateResponse(t *testing.T) {
	p := NewPendingCalls()
	if ok := p.Complete(123, Result{}); ok {
		t.Fatal("expected Complete on an unknown id to report false, not crash")
	}
}

func TestPendingCallsCancelRemovesWithoutResolving(t *testing.T) {
	p := NewPendingCalls()
	ch, err := p.Insert(4)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if ok := p.Cancel(4); !ok {
		t.Fatal("expected Cancel to find and remove the pending entry")
	}
	if p.Len() != 0 {
		t.Errorf("expected the entry to be removed, Len()=%d", p.Len())
	}
	select {
	case <-ch:
		t.Fatal("Cancel must not resolve the channel")
	default:
	}

	// A late Response for the cancelled id now lands on an unknown id and
	// must be dropped, not crash.
	if ok := p.Complete(4, Result{Value: []byte("late")}); ok {
		t.Fatal("expected Complete on a cancelled id to report false")
	}
}

func TestPendingCallsCancelOnUnknownIDReportsFalse(t *testing.T) {
	p := NewPendingCalls()
	if ok := p.Cancel(999); ok {
		t.Fatal("expected Cancel on an unknown id to report false")
	}
}

func TestPendingCallsDrainResolvesAllWithError(t *testing.T) {
	p := NewPendingCalls()
	var chans []<-chan Result
	for i := int32(1); i <= 5; i++ {
		ch, err := p.Insert(i)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		chans = append(chans, ch)
	}

	drainErr := fmt.Errorf("Process exited unexpectedly")
	p.DrainWithError(drainErr)

	for i, ch := range chans {
		res := <-ch
		if res.Err != drainErr {
			t.Errorf("entry %d: expected drain error, got %v", i, res.Err)
		}
	}
	if p.Len() != 0 {
		t.Errorf("expected empty registry after drain, Len()=%d", p.Len())
	}
}

func TestPendingCallsConcurrentInsertsAllComplete(t *testing.T) {
	p := NewPendingCalls()
	const n = 50

	var wg sync.WaitGroup
	for i := int32(1); i <= n; i++ {
		id := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := p.Insert(id)
			if err != nil {
				t.Errorf("Insert(%d) failed: %v", id, err)
				return
			}
			p.Complete(id, Result{Value: []byte{byte(id)}})
			<-ch
		}()
	}
	wg.Wait()
	if p.Len() != 0 {
		t.Errorf("expected all entries resolved, Len()=%d", p.Len())
	}
}

func TestEventTableDispatchWithNoSubscribersIsNotAnError(t *testing.T) {
	tbl := NewEventTable()
	handled, err := tbl.Dispatch("on_message", []byte("ignored"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Fatal("expected handled=false with no subscribers")
	}
}

func TestEventTableDispatchInvokesAllSubscribersInOrder(t *testing.T) {
	tbl := NewEventTable()
	decode := func(raw []byte) (any, error) { return string(raw), nil }

	var order []string
	tbl.Subscribe("on_message", decode, func(v any) { order = append(order, "first:"+v.(string)) })
	tbl.Subscribe("on_message", decode, func(v any) { order = append(order, "second:"+v.(string)) })

	handled, err := tbl.Dispatch("on_message", []byte("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled {
		t.Fatal("expected handled=true")
	}
	if len(order) != 2 || order[0] != "first:hi" || order[1] != "second:hi" {
		t.Errorf("unexpected dispatch order: %v", order)
	}
}

func TestEventTableUnsubscribeRemovesOnlyThatEntry(t *testing.T) {
	tbl := NewEventTable()
	decode := func(raw []byte) (any, error) { return string(raw), nil }

	var calls []string
	id1 := tbl.Subscribe("on_message", decode, func(v any) { calls = append(calls, "a") })
	tbl.Subscribe("on_message", decode, func(v any) { calls = append(calls, "b") })

	tbl.Unsubscribe("on_message", id1)
	calls = nil
	tbl.Dispatch("on_message", []byte("x"))
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("expected only subscriber b to remain, got %v", calls)
	}
}

func TestEventTableDropsEntryWhenEmpty(t *testing.T) {
	tbl := NewEventTable()
	decode := func(raw []byte) (any, error) { return string(raw), nil }
	id := tbl.Subscribe("on_message", decode, func(v any) {})
	tbl.Unsubscribe("on_message", id)

	if _, ok := tbl.entries["on_message"]; ok {
		t.Fatal("expected the event entry to be removed once its subscriber list empties")
	}
}

func TestEventTableSubscriberPanicDoesNotStopOthers(t *testing.T) {
	tbl := NewEventTable()
	decode := func(raw []byte) (any, error) { return string(raw), nil }

	var secondCalled bool
	tbl.Subscribe("on_message", decode, func(v any) { panic("boom") })
	tbl.Subscribe("on_message", decode, func(v any) { secondCalled = true })

	if _, err := tbl.Dispatch("on_message", []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !secondCalled {
		t.Fatal("expected the second subscriber to still run after the first panicked")
	}
}
