package batch

import "testing"

// TestWriteBatchAppendConcatenatesRecords mirrors
// original_source/db/write_batch_mv_test.cc's Append case: appending b2 onto
// b1 concatenates b2's records after b1's, summing the counts. b2's own
// sequence number plays no part — only b1's base sequence and position in
// the assembled batch matter once replayed.
func TestWriteBatchAppendConcatenatesRecords(t *testing.T) {
	b1 := New()
	b1.SetSequence(200)
	b1.Put([]byte("a"), 1, []byte("va"))
	b1.Put([]byte("b"), 2, []byte("vb"))

	b2 := New()
	b2.SetSequence(300) // must be ignored by Append
	b2.Put([]byte("c"), 3, []byte("vc"))
	b2.Delete([]byte("d"), 4)

	b1.Append(b2)

	if b1.Count() != 4 {
		t.Fatalf("Count = %d, want 4", b1.Count())
	}
	if b1.Sequence() != 200 {
		t.Errorf("Sequence = %d, want 200 (b1's own, unaffected by Append)", b1.Sequence())
	}

	h := &recordingHandler{}
	if err := b1.Iterate(h); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"Put(a)@1=va",
		"Put(b)@2=vb",
		"Put(c)@3=vc",
		"Delete(d)@4",
	}
	if len(h.out) != len(want) {
		t.Fatalf("got %v, want %v", h.out, want)
	}
	for i := range want {
		if h.out[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, h.out[i], want[i])
		}
	}
}

func TestWriteBatchAppendEmptySourceIsNoop(t *testing.T) {
	dst := New()
	dst.Put([]byte("a"), 1, []byte("va"))
	before := append([]byte(nil), dst.Contents()...)

	dst.Append(New())

	if dst.Count() != 1 {
		t.Errorf("Count = %d, want 1", dst.Count())
	}
	if string(dst.Contents()) != string(before) {
		t.Error("appending an empty batch changed contents")
	}
}

func TestWriteBatchAppendOntoEmptyDest(t *testing.T) {
	dst := New()
	src := New()
	src.Put([]byte("x"), 7, []byte("y"))

	dst.Append(src)

	if dst.Count() != 1 {
		t.Fatalf("Count = %d, want 1", dst.Count())
	}
	h := &recordingHandler{}
	if err := dst.Iterate(h); err != nil {
		t.Fatal(err)
	}
	if len(h.out) != 1 || h.out[0] != "Put(x)@7=y" {
		t.Errorf("got %v, want [Put(x)@7=y]", h.out)
	}
}
