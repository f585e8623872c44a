package hashing

import "testing"

func TestSHA256KnownVector(t *testing.T) {
	got := SHA256([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("SHA256(abc) = %s, want %s", got, want)
	}
}

func TestEntropyUniformIsEight(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	got := Entropy(data)
	if got < 7.99 || got > 8.0 {
		t.Fatalf("Entropy(uniform 256 bytes) = %v, want ~8.0", got)
	}
}

func TestEntropyEmpty(t *testing.T) {
	if got := Entropy(nil); got != 0 {
		t.Fatalf("Entropy(nil) = %v, want 0", got)
	}
}

func TestMinHashDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := MinHash(data, 8, 4, 42)
	b := MinHash(data, 8, 4, 42)
	if a != b {
		t.Fatalf("MinHash not deterministic: %s != %s", a, b)
	}
	c := MinHash(data, 8, 4, 7)
	if a == c {
		t.Fatalf("MinHash with different seed produced identical output")
	}
}

func TestMinHashLength(t *testing.T) {
	got := MinHash([]byte("abcd"), 4, 2, 0)
	if len(got) != 4*4*2 {
		t.Fatalf("MinHash hex length = %d, want %d", len(got), 4*4*2)
	}
}
