package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mnehpets/jsonrpc2/jsonrpc"
)

type Arith struct{}

type SubtractParams struct {
	_          struct{} `jsonrpc:"subtract"`
	Minuend    int      `json:"minuend"`
	Subtrahend int      `json:"subtrahend"`
}

func (Arith) Subtract(ctx context.Context, p SubtractParams) (int, error) {
	return p.Minuend - p.Subtrahend, nil
}

type DivideParams struct {
	_        struct{} `jsonrpc:"divide"`
	Dividend float64  `json:"dividend"`
	Divisor  float64  `json:"divisor"`
}

func (Arith) Divide(ctx context.Context, p DivideParams) (float64, error) {
	if p.Divisor == 0 {
		return 0, jsonrpc.NewErrorWithData(-32000, "division by zero", p)
	}
	return p.Dividend / p.Divisor, nil
}

func registerMethods(reg *jsonrpc.MethodRegistry) {
	reg.Register("", Arith{})

	jsonrpc.HandleTyped(reg, "sum", func(ctx context.Context, nums []int) (int, error) {
		total := 0
		for _, n := range nums {
			total += n
		}
		return total, nil
	})

	reg.Handle("get_data", func(ctx context.Context, req jsonrpc.Request, rb *jsonrpc.ResponseBuilder) error {
		rb.SetResult([]any{"hello", 5})
		return nil
	})

	reg.HandleNotification("update", func(ctx context.Context, req jsonrpc.Request) error {
		var values []any
		if err := req.DecodeParams(&values); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().Interface("values", values).Msg("update")
		return nil
	})

	reg.HandleNotification("notify_hello", func(ctx context.Context, req jsonrpc.Request) error {
		zerolog.Ctx(ctx).Info().RawJSON("params", rawParams(req)).Msg("hello")
		return nil
	})

	reg.RegisterBuiltins()
}

func rawParams(req jsonrpc.Request) []byte {
	raw, err := req.Params().Raw()
	if err != nil {
		return []byte("null")
	}
	return raw
}
