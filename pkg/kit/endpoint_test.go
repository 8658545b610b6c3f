package kit

import (
	"context"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		order = append(order, "endpoint")
		return req, nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(endpoint)
	resp, err := chained(context.Background(), "payload")
	if err != nil {
		t.Fatalf("chained endpoint: %v", err)
	}
	if resp != "payload" {
		t.Errorf("response = %v", resp)
	}

	want := []string{"a", "b", "c", "endpoint"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "http" {
		t.Errorf("default transport = %q", GetTransport(ctx))
	}
	ctx = WithTransport(ctx, "mcp")
	if GetTransport(ctx) != "mcp" {
		t.Errorf("transport = %q", GetTransport(ctx))
	}
	ctx = WithRequestID(ctx, "req-1")
	if GetRequestID(ctx) != "req-1" {
		t.Errorf("request id = %q", GetRequestID(ctx))
	}
}
