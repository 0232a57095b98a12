package encoding

import (
	"errors"
	"reflect"
	"testing"

	"hivemind.ai/internal/sim/binding"
)

func TestPathEncodeDecode(t *testing.T) {
	steps := []binding.Pos{
		{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 7, Y: 5}, {X: 8, Y: 5},
		{X: 9, Y: 6}, {X: 9, Y: 7}, {X: 8, Y: 8}, {X: 7, Y: 7},
	}
	s, err := EncodePath(steps)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePath(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, steps) {
		t.Fatalf("mismatch:\n got=%v\nwant=%v", got, steps)
	}
}

func TestPathSingleStepAndEmpty(t *testing.T) {
	s, err := EncodePath([]binding.Pos{{X: -3, Y: 2}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePath(s)
	if err != nil || len(got) != 1 || got[0] != (binding.Pos{X: -3, Y: 2}) {
		t.Fatalf("single step: got=%v err=%v", got, err)
	}
	if s, err := EncodePath(nil); err != nil || s != "" {
		t.Fatalf("empty: %q %v", s, err)
	}
}

func TestPathRejectsJumps(t *testing.T) {
	_, err := EncodePath([]binding.Pos{{X: 0, Y: 0}, {X: 2, Y: 0}})
	if !errors.Is(err, ErrNotContiguous) {
		t.Fatalf("expected ErrNotContiguous, got %v", err)
	}
	if _, err := DecodePath("!!not-base64"); err == nil {
		t.Fatalf("expected decode error")
	}
}
