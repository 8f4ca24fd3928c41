package embed

import (
	"context"
	"crypto/md5"
	"errors"
	"testing"

	"feature-monitor/internal/feature"
)

func TestMockDeterministicAndRepeating(t *testing.T) {
	m := Mock{}
	a, _ := m.Embed(context.Background(), "title\ndesc")
	b, _ := m.Embed(context.Background(), "title\ndesc")
	if len(a) != 1536 {
		t.Fatalf("dims got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("not deterministic at %d", i)
		}
		if a[i] < -1 || a[i] > 1 {
			t.Fatalf("value out of range at %d: %v", i, a[i])
		}
		if i >= 16 && a[i] != a[i%16] {
			t.Fatalf("pattern does not repeat at %d", i)
		}
	}
	sum := md5.Sum([]byte("title\ndesc"))
	if want := float64(sum[0])/255.0*2.0 - 1.0; a[0] != want {
		t.Fatalf("first value got %v want %v", a[0], want)
	}
}

func TestMockDimensions(t *testing.T) {
	v, _ := Mock{Dimensions: 20}.Embed(context.Background(), "x")
	if len(v) != 20 {
		t.Fatalf("got %d", len(v))
	}
}

type flaky struct{}

func (flaky) Embed(_ context.Context, text string) ([]float64, error) {
	if text == "bad\n" {
		return nil, errors.New("quota")
	}
	return []float64{1}, nil
}

func TestGenerate(t *testing.T) {
	in := []feature.Feature{{ID: "a", Title: "ok"}, {ID: "b", Title: "bad"}}
	out, n := Generate(context.Background(), flaky{}, in, nil)
	if n != 1 || out[0].Embedding == nil || out[1].Embedding != nil {
		t.Fatalf("got n=%d %+v", n, out)
	}
	if in[0].Embedding != nil {
		t.Fatalf("input mutated")
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := New("mock", 8); err != nil {
		t.Fatal(err)
	}
	if _, err := New("openai", 8); err == nil {
		t.Fatalf("unknown provider accepted")
	}
}
