package eventlog

import (
	"testing"

	"github.com/forestrie/go-keri/digest"
)

func TestAccumulatorRootChangesAsLeavesAreAdded(t *testing.T) {
	acc := NewAccumulator()

	zero, err := acc.Root()
	if err != nil {
		t.Fatal(err)
	}
	if !zero.IsZero() {
		t.Fatal("an empty accumulator should report a zero root")
	}

	d1, err := digest.New(digest.SHA2_256, []byte("leaf-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := acc.Add(d1); err != nil {
		t.Fatal(err)
	}
	root1, err := acc.Root()
	if err != nil {
		t.Fatal(err)
	}
	if root1.IsZero() {
		t.Fatal("expected a non-zero root after adding one leaf")
	}

	d2, err := digest.New(digest.SHA2_256, []byte("leaf-2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := acc.Add(d2); err != nil {
		t.Fatal(err)
	}
	root2, err := acc.Root()
	if err != nil {
		t.Fatal(err)
	}
	if root1.Equal(root2) {
		t.Fatal("the root must change once a second leaf is added")
	}
}

func TestAccumulatorSizeGrowsWithEachAdd(t *testing.T) {
	acc := NewAccumulator()
	if acc.Size() != 0 {
		t.Fatalf("expected initial size 0, got %d", acc.Size())
	}
	d, err := digest.New(digest.SHA2_256, []byte("leaf"))
	if err != nil {
		t.Fatal(err)
	}
	if err := acc.Add(d); err != nil {
		t.Fatal(err)
	}
	if acc.Size() == 0 {
		t.Fatal("expected size to grow after adding a leaf")
	}
}
