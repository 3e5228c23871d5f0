package ksid

import "testing"

func TestKernelsAreDeterministic(t *testing.T) {
	b, err := Canonicalize(int64(42))
	if err != nil {
		t.Fatal(err)
	}
	for name, kernel := range map[string]Kernel{
		"md5like":     HashMD5Like,
		"xxhashlike":  HashXXHashLike,
		"murmur3like": HashMurmur3Like,
	} {
		first := kernel(b)
		for i := 0; i < 5; i++ {
			if got := kernel(b); got != first {
				t.Fatalf("%s: not deterministic: %v != %v", name, got, first)
			}
		}
	}
}

func TestKernelsDifferByInput(t *testing.T) {
	a, _ := Canonicalize(int64(1))
	b, _ := Canonicalize(int64(2))
	for name, kernel := range map[string]Kernel{
		"md5like":     HashMD5Like,
		"xxhashlike":  HashXXHashLike,
		"murmur3like": HashMurmur3Like,
	} {
		if kernel(a) == kernel(b) {
			t.Errorf("%s: collided on distinct small inputs (unlucky but check)", name)
		}
	}
}

func TestCanonicalizeRejectsNil(t *testing.T) {
	if _, err := Canonicalize(nil); err != ErrNilValue {
		t.Fatalf("err = %v, want ErrNilValue", err)
	}
}

func TestCanonicalizeBytesVerbatim(t *testing.T) {
	in := []byte{1, 2, 3}
	out, err := Canonicalize(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(in) {
		t.Fatalf("got %v, want %v", out, in)
	}
}

func TestKeyspaceIdRoundTrip(t *testing.T) {
	k := FromUint64(0x0102030405060708)
	if k.Uint64() != 0x0102030405060708 {
		t.Fatalf("round trip failed: %x", k.Uint64())
	}
	rt, ok := FromBytes(k.Bytes())
	if !ok || rt != k {
		t.Fatalf("FromBytes round trip failed")
	}
}

func TestKeyspaceIdCompare(t *testing.T) {
	a := FromUint64(10)
	b := FromUint64(20)
	if a.Compare(b) >= 0 {
		t.Error("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Error("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Error("expected a == a")
	}
}
