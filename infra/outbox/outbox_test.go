package outbox

import (
	"bytes"
	"testing"
)

func openBox(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func pending(t *testing.T, o *Outbox) []Record {
	t.Helper()
	var out []Record
	if err := o.ScanPending(func(r Record) error {
		out = append(out, r)
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestPutNewIsPendingWithPayload(t *testing.T) {
	box := openBox(t)
	if err := box.PutNew(7, []byte(`{"trade":"x"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	recs := pending(t, box)
	if len(recs) != 1 {
		t.Fatalf("got %d pending, want 1", len(recs))
	}
	r := recs[0]
	if r.Seq != 7 || r.State != StateNew || r.Retries != 0 {
		t.Errorf("record = seq %d state %s retries %d", r.Seq, r.State, r.Retries)
	}
	if !bytes.Equal(r.Payload, []byte(`{"trade":"x"}`)) {
		t.Errorf("payload changed: %q", r.Payload)
	}
}

func TestScanOrdersBySequence(t *testing.T) {
	box := openBox(t)
	for _, seq := range []uint64{300, 1, 20} {
		if err := box.PutNew(seq, []byte("p")); err != nil {
			t.Fatalf("put %d: %v", seq, err)
		}
	}

	recs := pending(t, box)
	want := []uint64{1, 20, 300}
	for i, w := range want {
		if recs[i].Seq != w {
			t.Fatalf("scan order = %v, want ascending seq", recs)
		}
	}
}

func TestMarkSentTracksAttempts(t *testing.T) {
	box := openBox(t)
	if err := box.PutNew(1, []byte("p")); err != nil {
		t.Fatalf("put: %v", err)
	}

	r := pending(t, box)[0]
	if err := box.MarkSent(r); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	// A crash between produce and ack leaves the entry SENT; it must
	// still come back from the pending scan so it gets resent.
	r = pending(t, box)[0]
	if r.State != StateSent || r.Retries != 1 || r.LastAttempt == 0 {
		t.Errorf("after send: state %s retries %d attempt %d", r.State, r.Retries, r.LastAttempt)
	}

	if err := box.MarkSent(r); err != nil {
		t.Fatalf("mark sent again: %v", err)
	}
	if r = pending(t, box)[0]; r.Retries != 2 {
		t.Errorf("retries = %d, want 2", r.Retries)
	}
}

func TestAckedEntriesLeaveThePendingScan(t *testing.T) {
	box := openBox(t)
	for seq := uint64(1); seq <= 3; seq++ {
		if err := box.PutNew(seq, []byte("p")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	recs := pending(t, box)
	if err := box.MarkAcked(recs[1]); err != nil {
		t.Fatalf("ack: %v", err)
	}

	left := pending(t, box)
	if len(left) != 2 || left[0].Seq != 1 || left[1].Seq != 3 {
		t.Fatalf("pending after ack = %v, want seqs 1 and 3", left)
	}

	if err := box.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := pending(t, box); len(got) != 2 {
		t.Fatalf("delete of an acked entry must not disturb pending, got %v", got)
	}
}
