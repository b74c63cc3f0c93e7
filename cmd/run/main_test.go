package main

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/drivertest"
	"github.com/wippyai/capture-bridge/errors"
)

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want []string
	}{
		{
			name: "driver status",
			err:  errors.DriverError("CaptureFinger", -1140),
			want: []string{"capture 2 failed", "(driver_error)", "status -1140"},
		},
		{
			name: "empty capture",
			err:  errors.CaptureEmpty(0, 0),
			want: []string{"(capture_empty)", "reported size 0"},
		},
		{
			name: "unclassified",
			err:  stderrors.New("worker gone"),
			want: []string{"capture 2 failed: worker gone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeFailure(2, tt.err)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("%q does not contain %q", got, w)
				}
			}
		})
	}
}

func TestDescribeFailure_QualityOutOfRange(t *testing.T) {
	if math.MaxInt == math.MaxInt32 {
		t.Skip("int is 32 bits")
	}
	loader := drivertest.NewLoader()
	loader.Register("driver.so", &drivertest.Driver{Template: []byte{1, 2, 3}})
	b := bridge.New(binding.NewTable(loader, binding.DefaultSymbols()))
	if err := b.LoadModule(context.Background(), "driver.so"); err != nil {
		t.Fatal(err)
	}

	limit := int64(math.MaxInt32)
	res, err := b.CaptureTemplate(context.Background(), int(limit+1))
	if res.Success || res.ErrorCode != -998 {
		t.Fatalf("unexpected result %+v", res)
	}

	got := describeFailure(1, err)
	if !strings.Contains(got, "(invalid_input)") || !strings.Contains(got, "quality out of range") {
		t.Fatalf("reason missing from %q", got)
	}
}
