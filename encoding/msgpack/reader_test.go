package msgpack

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"testing"
)

func mkex(ex string) []byte {
	ex = strings.ReplaceAll(ex, " ", "")
	p, err := hex.DecodeString(ex)
	if err != nil {
		panic(err)
	}
	return p
}

func TestReader_IntTargets(t *testing.T) {
	// the same token must decode into any integer target wide enough for it
	buf := mkex("03")

	r := NewReader(buf)
	if v, err := r.ReadInt64(); err != nil || v != 3 {
		t.Errorf("int64: %v, %v", v, err)
	}

	r = NewReader(buf)
	if v, err := r.ReadUint16(); err != nil || v != 3 {
		t.Errorf("uint16: %v, %v", v, err)
	}

	r = NewReader(buf)
	if v, err := r.ReadUint8(); err != nil || v != 3 {
		t.Errorf("uint8: %v, %v", v, err)
	}
}

func TestReader_IntOverflow(t *testing.T) {
	for name, c := range map[string]struct {
		in   []byte
		read func(r *Reader) error
	}{
		"uint16 256 into uint8": {
			mkex("cd0100"),
			func(r *Reader) error { _, err := r.ReadUint8(); return err },
		},
		"int16 32767 into int8": {
			mkex("d1 7fff"),
			func(r *Reader) error { _, err := r.ReadInt8(); return err },
		},
		"negative into uint": {
			mkex("e0"), // -32
			func(r *Reader) error { _, err := r.ReadUint(); return err },
		},
		"uint64 max into int64": {
			mkex("cf ffffffffffffffff"),
			func(r *Reader) error { _, err := r.ReadInt(); return err },
		},
		"int32 into int16": {
			mkex("d2 00010000"),
			func(r *Reader) error { _, err := r.ReadInt16(); return err },
		},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewReader(c.in)
			if err := c.read(&r); !errors.Is(err, ErrOverflow) {
				t.Errorf("expect ErrOverflow, got %v", err)
			}
		})
	}
}

func TestReader_IntAcrossEncodings(t *testing.T) {
	for name, c := range map[string]struct {
		in   []byte
		want int64
	}{
		"fixint 0":       {mkex("00"), 0},
		"fixint 127":     {mkex("7f"), 127},
		"negfixint -1":   {mkex("ff"), -1},
		"negfixint -32":  {mkex("e0"), -32},
		"uint8 200":      {mkex("cc c8"), 200},
		"uint16 65535":   {mkex("cd ffff"), 65535},
		"uint32":         {mkex("ce 00010000"), 65536},
		"uint64":         {mkex("cf 0000000100000000"), 1 << 32},
		"int8 -128":      {mkex("d0 80"), -128},
		"int16 -32768":   {mkex("d1 8000"), -32768},
		"int32 min":      {mkex("d2 80000000"), math.MinInt32},
		"int64 min":      {mkex("d3 8000000000000000"), math.MinInt64},
		"int8 positive":  {mkex("d0 05"), 5},
		"int64 positive": {mkex("d3 0000000000000005"), 5},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewReader(c.in)
			v, err := r.ReadInt()
			if err != nil {
				t.Fatal(err)
			}
			if v != c.want {
				t.Errorf("%d != %d", c.want, v)
			}
			if r.Remaining() != 0 {
				t.Errorf("%d bytes left unread", r.Remaining())
			}
		})
	}
}

func TestReader_FloatWidening(t *testing.T) {
	r := NewReader(mkex("ca 3fc00000")) // float32 1.5
	v, err := r.ReadFloat64()
	if err != nil {
		t.Fatal(err)
	}
	if v != 1.5 {
		t.Errorf("1.5 != %v", v)
	}

	// reading a double as float32 must not narrow silently
	r = NewReader(mkex("cb 3ff8000000000000"))
	if _, err := r.ReadFloat32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expect ErrOverflow, got %v", err)
	}
}

func TestReader_TryReadNil(t *testing.T) {
	r := NewReader(mkex("c0 01"))
	if !r.TryReadNil() {
		t.Error("expect nil consumed")
	}
	if r.TryReadNil() {
		t.Error("expect no advance on non-nil")
	}
	if v, err := r.ReadInt(); err != nil || v != 1 {
		t.Errorf("trailing token disturbed: %v, %v", v, err)
	}
}

func TestReader_StringAndBinary(t *testing.T) {
	for name, c := range map[string]struct {
		in   []byte
		want string
	}{
		"fixstr":  {mkex("a5 68656c6c6f"), "hello"},
		"str8":    {append(mkex("d9 20"), bytes.Repeat([]byte("ab"), 16)...), strings.Repeat("ab", 16)},
		"str16":   {append(mkex("da 0100"), bytes.Repeat([]byte("x"), 256)...), strings.Repeat("x", 256)},
		"empty":   {mkex("a0"), ""},
		"unicode": {mkex("a3 e298ba"), "☺"},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewReader(c.in)
			s, err := r.ReadString()
			if err != nil {
				t.Fatal(err)
			}
			if s != c.want {
				t.Errorf("%q != %q", c.want, s)
			}
		})
	}

	r := NewReader(mkex("c4 03 010203"))
	p, err := r.ReadBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, []byte{1, 2, 3}) {
		t.Errorf("bin mismatch: %x", p)
	}
}

func TestReader_Headers(t *testing.T) {
	r := NewReader(mkex("93 01 02 03"))
	n, err := r.ReadArrayHeader()
	if err != nil || n != 3 {
		t.Fatalf("array header: %d, %v", n, err)
	}

	r = NewReader(mkex("de 0011"))
	n, err = r.ReadMapHeader()
	if err != nil || n != 17 {
		t.Fatalf("map header: %d, %v", n, err)
	}

	r = NewReader(mkex("d6 05 00000001"))
	typ, n, err := r.ReadExtensionHeader()
	if err != nil || typ != 5 || n != 4 {
		t.Fatalf("ext header: %d %d, %v", typ, n, err)
	}
}

func TestReader_Malformed(t *testing.T) {
	r := NewReader(mkex("c1"))
	if _, err := r.Peek(); !errors.Is(err, ErrMalformed) {
		t.Errorf("0xc1: expect ErrMalformed, got %v", err)
	}

	r = NewReader(mkex("c3"))
	if _, err := r.ReadInt(); !errors.Is(err, ErrMalformed) {
		t.Errorf("bool as int: expect ErrMalformed, got %v", err)
	}

	r = NewReader(mkex("a1 78"))
	if _, err := r.ReadArrayHeader(); !errors.Is(err, ErrMalformed) {
		t.Errorf("str as array: expect ErrMalformed, got %v", err)
	}
}

func TestReader_Truncated(t *testing.T) {
	whole := mkex("da 0004 61626364") // str16 "abcd"
	for i := 0; i < len(whole); i++ {
		r := NewReader(whole[:i])
		if _, err := r.ReadString(); !errors.Is(err, ErrEndOfStream) {
			t.Errorf("prefix of %d bytes: expect ErrEndOfStream, got %v", i, err)
		}
	}
}

func TestReader_SkipIsRead(t *testing.T) {
	// for every well-formed structure, skip must advance exactly as far as a
	// full read would
	for name, in := range map[string][]byte{
		"int":       mkex("cd 0100"),
		"nil":       mkex("c0"),
		"str":       mkex("a3 616263"),
		"bin":       mkex("c4 02 ffff"),
		"ext":       mkex("d5 07 beef"),
		"flat list": mkex("93 01 a1 61 c2"),
		"nested":    mkex("82 a1 61 91 82 a1 62 c0 a1 63 cb 3ff0000000000000 a1 64 c4 01 00"),
	} {
		t.Run(name, func(t *testing.T) {
			skip := NewReader(in)
			if err := skip.Skip(); err != nil {
				t.Fatal(err)
			}
			if skip.Pos() != len(in) {
				t.Errorf("skip stopped at %d of %d", skip.Pos(), len(in))
			}
		})
	}
}

func TestReader_ReadRaw(t *testing.T) {
	in := mkex("92 01 02 c0")
	r := NewReader(in)
	raw, err := r.ReadRaw()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, mkex("92 01 02")) {
		t.Errorf("raw mismatch: %x", raw)
	}
	if !r.TryReadNil() {
		t.Error("cursor not after raw structure")
	}
}

func TestReader_Fork(t *testing.T) {
	r := NewReader(mkex("01 02"))
	fork := r.Fork()
	if v, _ := fork.ReadInt(); v != 1 {
		t.Fatal("fork first read")
	}
	// parent undisturbed by discarded fork
	if v, _ := r.ReadInt(); v != 1 {
		t.Error("parent advanced by fork")
	}

	fork = r.Fork()
	if v, _ := fork.ReadInt(); v != 2 {
		t.Fatal("fork second read")
	}
	r.Commit(fork)
	if r.Remaining() != 0 {
		t.Error("commit did not adopt fork position")
	}
}
