package typepack

import (
	"context"
	"testing"

	"github.com/typepack/typepack-go/shapes"
)

type benchRecord struct {
	ID     int64    `msgpack:"id"`
	Name   string   `msgpack:"name"`
	Email  string   `msgpack:"email"`
	Scores []int64  `msgpack:"scores"`
	Bio    *string  `msgpack:"bio"`
	Rating float64  `msgpack:"rating"`
	Labels []string `msgpack:"labels"`
}

func benchValue() benchRecord {
	bio := "hasher of structures, writer of bytes"
	return benchRecord{
		ID:     981232,
		Name:   "Benchmark Person",
		Email:  "bench@example.com",
		Scores: []int64{10, 20, 30, 40, 50},
		Bio:    &bio,
		Rating: 4.75,
		Labels: []string{"alpha", "beta"},
	}
}

func BenchmarkSerialize(b *testing.B) {
	s := NewSerializer()
	ctx := context.Background()
	v := benchValue()

	// prime the converter cache outside the loop
	if _, err := Marshal(ctx, s, v); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Marshal(ctx, s, v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	s := NewSerializer()
	ctx := context.Background()

	p, err := Marshal(ctx, s, benchValue())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Unmarshal[benchRecord](ctx, s, p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeserialize_Interned(b *testing.B) {
	s := NewSerializer(func(o *SerializerOptions) {
		o.InternStrings = true
	})
	ctx := context.Background()

	p, err := Marshal(ctx, s, benchValue())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Unmarshal[benchRecord](ctx, s, p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTargetedProperty(b *testing.B) {
	s := NewSerializer()
	ctx := context.Background()

	p, err := Marshal(ctx, s, benchValue())
	if err != nil {
		b.Fatal(err)
	}
	shape, err := shapes.For[benchRecord]()
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.DeserializeProperty(ctx, shape, p, "email"); err != nil {
			b.Fatal(err)
		}
	}
}
