package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultTapeSize is the tape length in cells used when Options leaves
// TapeSize zero.
const DefaultTapeSize = 30000

// EOFPolicy selects what OpInput does when the byte source is exhausted.
type EOFPolicy int

const (
	// EOFKeep leaves the current cell unchanged.
	EOFKeep EOFPolicy = iota

	// EOFZero stores zero into the current cell.
	EOFZero

	// EOFMinusOne stores 0xFF into the current cell.
	EOFMinusOne
)

// String returns the configuration name of the policy.
func (p EOFPolicy) String() string {
	switch p {
	case EOFKeep:
		return "keep"
	case EOFZero:
		return "zero"
	case EOFMinusOne:
		return "minus-one"
	default:
		return fmt.Sprintf("EOFPolicy(%d)", int(p))
	}
}

// ParseEOFPolicy maps a configuration string to a policy. The empty string
// means the default policy.
func ParseEOFPolicy(s string) (EOFPolicy, error) {
	switch s {
	case "", "keep":
		return EOFKeep, nil
	case "zero":
		return EOFZero, nil
	case "minus-one":
		return EOFMinusOne, nil
	}
	return EOFKeep, fmt.Errorf("unknown EOF policy %q (want keep, zero, or minus-one)", s)
}

// Options configures a VM.
type Options struct {
	TapeSize int       // tape length in cells, DefaultTapeSize when 0
	In       io.Reader // byte source for OpInput, nil reads as exhausted
	Out      io.Writer // byte sink for OpOutput, nil discards

	EOF EOFPolicy // what OpInput stores at end of input

	// CheckBounds turns cursor excursions into *TapeFaultError instead of
	// letting the access fault.
	CheckBounds bool

	// CollectStats counts retired instructions and I/O bytes.
	CollectStats bool

	// Trace prints every instruction before it executes.
	Trace bool
}

// TapeFaultError reports a cursor excursion caught in bounds-checking mode.
type TapeFaultError struct {
	Cursor int // the out-of-range cell index
	Size   int // tape length
	Offset int // bytecode offset of the faulting instruction
}

func (e *TapeFaultError) Error() string {
	return fmt.Sprintf("tape cursor %d out of range [0,%d) at offset 0x%04X", e.Cursor, e.Size, e.Offset)
}

// Stats counts work done during a run.
type Stats struct {
	Executed    uint64      // instructions retired
	InputBytes  uint64      // bytes read from the source
	OutputBytes uint64      // bytes written to the sink
	PerOp       [256]uint64 // retirement count per opcode byte
}

// Count returns the retirement count for one opcode.
func (s *Stats) Count(op Opcode) uint64 {
	return s.PerOp[op]
}

// VM executes a bytecode chunk against a byte tape. Each VM owns one tape
// and runs one chunk; build a fresh VM per execution.
//
// Cell arithmetic wraps modulo 256. A cursor excursion outside the tape is
// not defined behavior: without CheckBounds it surfaces as the runtime's
// slice range fault at the first out-of-range access.
type VM struct {
	chunk  *Chunk
	tape   []byte
	cursor int
	ip     int

	in  io.Reader
	out io.Writer

	eof          EOFPolicy
	checkBounds  bool
	collectStats bool
	trace        bool

	stats Stats
	rbuf  [1]byte
	wbuf  [1]byte
}

// NewVM creates a VM for the chunk with a zeroed tape and the cursor at
// cell zero.
func NewVM(chunk *Chunk, opts Options) *VM {
	size := opts.TapeSize
	if size <= 0 {
		size = DefaultTapeSize
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &VM{
		chunk:        chunk,
		tape:         make([]byte, size),
		in:           opts.In,
		out:          out,
		eof:          opts.EOF,
		checkBounds:  opts.CheckBounds,
		collectStats: opts.CollectStats,
		trace:        opts.Trace,
	}
}

// Tape returns the live tape contents.
func (vm *VM) Tape() []byte {
	return vm.tape
}

// Cursor returns the current cell index.
func (vm *VM) Cursor() int {
	return vm.cursor
}

// Stats returns a copy of the run statistics. Counts are only collected
// when the VM was built with CollectStats.
func (vm *VM) Stats() Stats {
	return vm.stats
}

// Run executes the chunk until OpHalt or the end of the code section.
func (vm *VM) Run() error {
	for vm.ip < len(vm.chunk.Code) {
		start := vm.ip
		op := Opcode(vm.chunk.Code[vm.ip])
		vm.ip++

		if vm.trace {
			fmt.Printf("[%04x] %-13s cursor=%d\n", start, op.String(), vm.cursor)
		}
		if vm.collectStats {
			vm.stats.Executed++
			vm.stats.PerOp[op]++
		}

		switch op {
		// ============ Tape arithmetic ============

		case OpAdd:
			amount := vm.chunk.Code[vm.ip]
			vm.ip++
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			vm.tape[vm.cursor] += amount

		case OpMove:
			vm.cursor += int(vm.readInt16())

		case OpSet:
			value := vm.chunk.Code[vm.ip]
			vm.ip++
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			vm.tape[vm.cursor] = value

		// ============ Loop composites ============

		case OpScan:
			stride := int(vm.readInt16())
			if vm.checkBounds {
				for {
					if !vm.onTape(vm.cursor) {
						return vm.fault(vm.cursor, start)
					}
					if vm.tape[vm.cursor] == 0 {
						break
					}
					vm.cursor += stride
				}
			} else {
				for vm.tape[vm.cursor] != 0 {
					vm.cursor += stride
				}
			}

		case OpMulAdd:
			offset := int(vm.readInt16())
			factor := vm.chunk.Code[vm.ip]
			vm.ip++
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			// A zero cell means the source loop never would have run, so
			// the target cell must not be touched at all.
			cell := vm.tape[vm.cursor]
			if cell != 0 {
				target := vm.cursor + offset
				if vm.checkBounds && !vm.onTape(target) {
					return vm.fault(target, start)
				}
				vm.tape[target] += cell * factor
			}

		// ============ I/O ============

		case OpOutput:
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			vm.wbuf[0] = vm.tape[vm.cursor]
			if _, err := vm.out.Write(vm.wbuf[:]); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if vm.collectStats {
				vm.stats.OutputBytes++
			}

		case OpInput:
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			b, ok, err := vm.readByte()
			if err != nil {
				return err
			}
			if ok {
				vm.tape[vm.cursor] = b
				if vm.collectStats {
					vm.stats.InputBytes++
				}
				break
			}
			switch vm.eof {
			case EOFZero:
				vm.tape[vm.cursor] = 0
			case EOFMinusOne:
				vm.tape[vm.cursor] = 0xFF
			}
			// EOFKeep leaves the cell as it was

		// ============ Control flow ============

		case OpJumpZero:
			offset := vm.readInt16()
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			if vm.tape[vm.cursor] == 0 {
				vm.ip += int(offset)
			}

		case OpJumpNotZero:
			offset := vm.readInt16()
			if vm.checkBounds && !vm.onTape(vm.cursor) {
				return vm.fault(vm.cursor, start)
			}
			if vm.tape[vm.cursor] != 0 {
				vm.ip += int(offset)
			}

		// ============ Halt ============

		case OpHalt:
			return nil

		default:
			return fmt.Errorf("unknown opcode: 0x%02x at offset %d", byte(op), vm.ip-1)
		}
	}
	return nil
}

// readByte pulls one byte from the source. The second return value is
// false at end of input.
func (vm *VM) readByte() (byte, bool, error) {
	if vm.in == nil {
		return 0, false, nil
	}
	for {
		n, err := vm.in.Read(vm.rbuf[:])
		if n > 0 {
			return vm.rbuf[0], true, nil
		}
		if errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("read input: %w", err)
		}
	}
}

// readUint16 reads a big-endian operand and advances past it.
func (vm *VM) readUint16() uint16 {
	v := binary.BigEndian.Uint16(vm.chunk.Code[vm.ip:])
	vm.ip += 2
	return v
}

// readInt16 reads a signed big-endian operand and advances past it.
func (vm *VM) readInt16() int16 {
	return int16(vm.readUint16())
}

func (vm *VM) onTape(idx int) bool {
	return idx >= 0 && idx < len(vm.tape)
}

func (vm *VM) fault(idx, at int) error {
	return &TapeFaultError{Cursor: idx, Size: len(vm.tape), Offset: at}
}
