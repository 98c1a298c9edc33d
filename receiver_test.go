package rudp

import (
	"bytes"
	"testing"
)

// TestHandleDataOutOfOrder drives the ControlBlock directly with segments
// arriving [2,1,3] (spec.md §8 S3): the first segment staged out of order,
// the second completing in-order delivery and draining the staged run, the
// third arriving after reassembly has already caught up.
func TestHandleDataOutOfOrder(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.rcv.NXT = 100

	seg1 := Segment{SEQ: 100, Payload: []byte("aaaa")}
	seg2 := Segment{SEQ: 104, Payload: []byte("bbbb")}
	seg3 := Segment{SEQ: 108, Payload: []byte("cccc")}

	// seg2 arrives first: out of order relative to rcv.NXT==100.
	delivered, ackNeeded := cb.handleData(seg2)
	if delivered != nil {
		t.Fatalf("seg2 arriving early: want no delivery, got %q", delivered)
	}
	if !ackNeeded {
		t.Error("seg2 arriving early: want ackNeeded")
	}
	if _, ok := cb.findOOOMatch(104); !ok {
		t.Fatal("seg2 should be staged in the out-of-order buffer")
	}

	// seg1 arrives next, completing the run through seg2.
	delivered, ackNeeded = cb.handleData(seg1)
	if !ackNeeded {
		t.Error("seg1: want ackNeeded")
	}
	want := append(append([]byte{}, seg1.Payload...), seg2.Payload...)
	if !bytes.Equal(delivered, want) {
		t.Fatalf("seg1+seg2 reassembly: got %q, want %q", delivered, want)
	}
	if cb.rcv.NXT != 108 {
		t.Fatalf("rcv.NXT after reassembly = %d, want 108", cb.rcv.NXT)
	}
	if _, ok := cb.findOOOMatch(104); ok {
		t.Fatal("out-of-order buffer should no longer hold seg2's slot")
	}
	for i := range cb.rcv.ooo {
		if cb.rcv.ooo[i].used {
			t.Fatalf("ooo buffer slot %d still marked used after reassembly completed", i)
		}
	}

	// seg3 arrives last, now in order.
	delivered, ackNeeded = cb.handleData(seg3)
	if !ackNeeded {
		t.Error("seg3: want ackNeeded")
	}
	if !bytes.Equal(delivered, seg3.Payload) {
		t.Fatalf("seg3 delivery: got %q, want %q", delivered, seg3.Payload)
	}
	if cb.rcv.NXT != 112 {
		t.Fatalf("rcv.NXT after seg3 = %d, want 112", cb.rcv.NXT)
	}
	for i := range cb.rcv.ooo {
		if cb.rcv.ooo[i].used {
			t.Fatalf("ooo buffer slot %d used at completion, want empty", i)
		}
	}
}

// TestStageOutOfOrderDuplicateIgnored confirms a segment already staged does
// not consume a second slot on redelivery.
func TestStageOutOfOrderDuplicateIgnored(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.rcv.NXT = 0
	seg := Segment{SEQ: 10, Payload: []byte("x")}
	cb.stageOutOfOrder(seg)
	cb.stageOutOfOrder(seg)

	used := 0
	for i := range cb.rcv.ooo {
		if cb.rcv.ooo[i].used {
			used++
		}
	}
	if used != 1 {
		t.Fatalf("duplicate staging: %d slots used, want 1", used)
	}
}

// TestStageOutOfOrderFull confirms a segment arriving with no free slot is
// silently dropped rather than evicting an existing one.
func TestStageOutOfOrderFull(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.rcv.NXT = 0
	for i := 0; i < W; i++ {
		cb.stageOutOfOrder(Segment{SEQ: uint32(10 + i), Payload: []byte{byte(i)}})
	}
	// Buffer is now full; one more distinct segment should be dropped, not
	// evict slot 0.
	cb.stageOutOfOrder(Segment{SEQ: 999, Payload: []byte("overflow")})
	if _, ok := cb.findOOOMatch(999); ok {
		t.Fatal("overflow segment should have been dropped, not staged")
	}
	if _, ok := cb.findOOOMatch(10); !ok {
		t.Fatal("original slot 0 should still hold seq 10")
	}
}

// TestHandleDataDuplicateIgnored confirms data already delivered (seq below
// rcv.NXT) produces no delivery but still requests an ACK, matching the
// receiver's "duplicate segments still get no dedicated retransmit trigger"
// open question: the ACK is the only signal sent back.
func TestHandleDataDuplicateIgnored(t *testing.T) {
	cb := newControlBlock(0, DefaultRecvBufferSize, 0)
	cb.rcv.NXT = 50
	delivered, ackNeeded := cb.handleData(Segment{SEQ: 10, Payload: []byte("stale")})
	if delivered != nil {
		t.Fatalf("duplicate segment: want no delivery, got %q", delivered)
	}
	if !ackNeeded {
		t.Error("duplicate segment: want ackNeeded")
	}
	if cb.rcv.NXT != 50 {
		t.Fatalf("rcv.NXT moved on duplicate: got %d, want 50", cb.rcv.NXT)
	}
}
