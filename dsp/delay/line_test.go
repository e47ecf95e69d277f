package delay

import "testing"

func TestNewValidation(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for size=0")
	}

	if _, err := New(-1); err == nil {
		t.Fatal("expected error for size=-1")
	}
}

func TestReadWrite(t *testing.T) {
	d, err := New(8)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 8; i++ {
		d.Write(complex(float64(i), -float64(i)))
	}
	// delay=1 => most recently written (7)
	if got := d.Read(1); got != complex(7, -7) {
		t.Fatalf("got %v want 7-7i", got)
	}
	if got := d.Read(3); got != complex(5, -5) {
		t.Fatalf("got %v want 5-5i", got)
	}
	// delay=Len => oldest
	if got := d.Read(8); got != 0 {
		t.Fatalf("got %v want 0", got)
	}
}

func TestReadWraparound(t *testing.T) {
	d, err := New(4)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		d.Write(complex(float64(i), 0))
	}

	for delay, want := range map[int]float64{1: 9, 2: 8, 3: 7, 4: 6} {
		if got := d.Read(delay); real(got) != want {
			t.Fatalf("Read(%d) = %v, want %v", delay, got, want)
		}
	}
}

func TestScale(t *testing.T) {
	d, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	d.Write(2 + 2i)
	d.Write(4)
	d.Scale(2, 0.5)
	if got := d.Read(2); got != 1+1i {
		t.Fatalf("Read(2) = %v, want 1+1i", got)
	}
	if got := d.Read(1); got != 4 {
		t.Fatalf("Read(1) = %v, want 4", got)
	}
}

func TestReset(t *testing.T) {
	d, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	d.Write(1)
	d.Write(2)
	d.Reset()
	for delay := 1; delay <= d.Len(); delay++ {
		if got := d.Read(delay); got != 0 {
			t.Fatalf("Read(%d) after Reset = %v, want 0", delay, got)
		}
	}
}
