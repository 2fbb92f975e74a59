package blocktree

import "testing"

func TestInsertAndGet(t *testing.T) {
	tr := New[int](4096, 8, 512)
	if err := tr.Insert(0, 1024, InFile, 100, 1024, 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(1024, 1024, Compressed, 2000, 300, 2); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(2048, 2048, Sparse, 0, 0, 3); err != nil {
		t.Fatal(err)
	}

	r, ok := tr.Get(1500)
	if !ok {
		t.Fatal("expected a range covering offset 1500")
	}
	if r.Value != 2 || r.Type != Compressed {
		t.Fatalf("got %+v, want value=2 type=Compressed", r)
	}

	r, ok = tr.Get(3000)
	if !ok || r.Value != 3 {
		t.Fatalf("got %+v, ok=%v, want value=3", r, ok)
	}
}

func TestInsertOverlapRejected(t *testing.T) {
	tr := New[int](4096, 8, 512)
	if err := tr.Insert(0, 1024, InFile, 0, 1024, 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(512, 512, InFile, 0, 512, 2); err == nil {
		t.Fatal("expected overlap error")
	}
	if err := tr.Insert(1000, 100, InFile, 0, 100, 3); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestGetUncoveredOffset(t *testing.T) {
	tr := New[int](4096, 8, 512)
	if err := tr.Insert(0, 1024, InFile, 0, 1024, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Get(2000); ok {
		t.Fatal("expected no range covering an uninserted offset")
	}
}

func TestInsertOutOfOrder(t *testing.T) {
	tr := New[int](4096, 8, 512)
	if err := tr.Insert(2048, 1024, InFile, 0, 1024, 3); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(0, 1024, InFile, 0, 1024, 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(1024, 1024, InFile, 0, 1024, 2); err != nil {
		t.Fatal(err)
	}
	for offset, want := range map[int64]int{100: 1, 1100: 2, 2100: 3} {
		r, ok := tr.Get(offset)
		if !ok || r.Value != want {
			t.Fatalf("Get(%d) = %+v, ok=%v, want value=%d", offset, r, ok, want)
		}
	}
}
