package digest

import "testing"

func TestSumAndVerifySource(t *testing.T) {
	for _, code := range []Code{Blake3_256, Blake2b256, Blake2b512, Blake2s256, SHA3_256, SHA3_512, SHA2_256, SHA2_512} {
		d, err := New(code, []byte("hello keri"))
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if len(d.Bytes) != code.Size() {
			t.Fatalf("%s: got %d bytes, want %d", code, len(d.Bytes), code.Size())
		}
		ok, err := d.VerifySource([]byte("hello keri"))
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if !ok {
			t.Fatalf("%s: VerifySource should succeed on original bytes", code)
		}
		ok, err = d.VerifySource([]byte("tampered"))
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if ok {
			t.Fatalf("%s: VerifySource should fail on tampered bytes", code)
		}
	}
}

func TestUnknownCode(t *testing.T) {
	if _, err := New(Code(255), []byte("x")); err == nil {
		t.Fatal("expected ErrUnknownCode for an unrecognized code")
	}
}

func TestEqual(t *testing.T) {
	a, _ := New(Blake3_256, []byte("a"))
	b, _ := New(Blake3_256, []byte("a"))
	c, _ := New(Blake3_256, []byte("b"))
	if !a.Equal(b) {
		t.Fatal("equal-code equal-bytes digests should compare equal")
	}
	if a.Equal(c) {
		t.Fatal("equal-code differing-bytes digests should compare unequal")
	}
	d, _ := New(SHA2_256, []byte("a"))
	if a.Equal(d) {
		t.Fatal("differing-code digests should never compare equal without recomputation")
	}
}

func TestIsZero(t *testing.T) {
	var z Digest
	if !z.IsZero() {
		t.Fatal("zero-value Digest should report IsZero")
	}
	d, _ := New(Blake3_256, []byte("x"))
	if d.IsZero() {
		t.Fatal("populated Digest should not report IsZero")
	}
}

func TestQb64ParseQb64RoundTrip(t *testing.T) {
	for _, code := range []Code{Blake3_256, Blake2b256, Blake2b512, Blake2s256, SHA3_256, SHA3_512, SHA2_256, SHA2_512} {
		d, err := New(code, []byte("round trip me"))
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		got, err := ParseQb64(d.Qb64())
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		if !got.Equal(d) {
			t.Fatalf("%s: round trip mismatch: got %+v, want %+v", code, got, d)
		}
	}
}

func TestParseQb64EmptyStringIsZeroDigest(t *testing.T) {
	got, err := ParseQb64("")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Fatal("expected an empty qb64 string to parse back to a zero Digest")
	}
}

func TestParseQb64RejectsMalformed(t *testing.T) {
	if _, err := ParseQb64("not-a-qb64-string"); err == nil {
		t.Fatal("expected an error for a qb64 string missing the '#' separator")
	}
	if _, err := ParseQb64("x#aabb"); err == nil {
		t.Fatal("expected an error for a non-numeric code")
	}
	if _, err := ParseQb64("0#zz"); err == nil {
		t.Fatal("expected an error for non-hex digest bytes")
	}
}
