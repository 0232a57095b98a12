package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// appendRuns writes (value, run_len) varint pairs for consecutive equal values.
func appendRuns(buf *bytes.Buffer, vals []uint8) {
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}
}

// readRuns expands (value, run_len) pairs. limit caps the expanded length.
func readRuns(raw []byte, limit int) ([]uint8, error) {
	var out []uint8
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFF {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if run == 0 || len(out)+int(run) > limit {
			return nil, fmt.Errorf("bad run length %d", run)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, uint8(v))
		}
	}
	return out, nil
}
