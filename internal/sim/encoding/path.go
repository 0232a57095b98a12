// Package encoding holds the compact movement-plan encoding: the first
// waypoint followed by run-length encoded direction codes, base64 wrapped.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"hivemind.ai/internal/sim/binding"
)

// MaxSteps bounds a decoded path.
const MaxSteps = 4096

var ErrNotContiguous = errors.New("path steps are not contiguous")

// Directions 1..8, clockwise from north.
var dirs = [9]binding.Pos{
	{},
	{X: 0, Y: -1},  // 1 N
	{X: 1, Y: -1},  // 2 NE
	{X: 1, Y: 0},   // 3 E
	{X: 1, Y: 1},   // 4 SE
	{X: 0, Y: 1},   // 5 S
	{X: -1, Y: 1},  // 6 SW
	{X: -1, Y: 0},  // 7 W
	{X: -1, Y: -1}, // 8 NW
}

// Direction returns the direction code from a to an adjacent b, or 0.
func Direction(a, b binding.Pos) uint8 {
	d := binding.Pos{X: b.X - a.X, Y: b.Y - a.Y}
	for i := 1; i < len(dirs); i++ {
		if dirs[i] == d {
			return uint8(i)
		}
	}
	return 0
}

// EncodePath encodes a contiguous list of waypoints.
func EncodePath(steps []binding.Pos) (string, error) {
	if len(steps) == 0 {
		return "", nil
	}
	if len(steps) > MaxSteps {
		return "", fmt.Errorf("path too long: %d", len(steps))
	}
	codes := make([]uint8, 0, len(steps)-1)
	for i := 1; i < len(steps); i++ {
		d := Direction(steps[i-1], steps[i])
		if d == 0 {
			return "", fmt.Errorf("step %d: %w", i, ErrNotContiguous)
		}
		codes = append(codes, d)
	}

	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], int64(steps[0].X))
	buf.Write(tmp[:n])
	n = binary.PutVarint(tmp[:], int64(steps[0].Y))
	buf.Write(tmp[:n])
	appendRuns(&buf, codes)
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePath reverses EncodePath.
func DecodePath(s string) ([]binding.Pos, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	x, n := binary.Varint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("bad origin x")
	}
	raw = raw[n:]
	y, n := binary.Varint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("bad origin y")
	}
	raw = raw[n:]

	codes, err := readRuns(raw, MaxSteps-1)
	if err != nil {
		return nil, err
	}
	cur := binding.Pos{X: int(x), Y: int(y)}
	out := make([]binding.Pos, 0, len(codes)+1)
	out = append(out, cur)
	for i, c := range codes {
		if c == 0 || int(c) >= len(dirs) {
			return nil, fmt.Errorf("bad direction %d at %d", c, i)
		}
		cur = binding.Pos{X: cur.X + dirs[c].X, Y: cur.Y + dirs[c].Y}
		out = append(out, cur)
	}
	return out, nil
}
