// Package kfmt provides a small, allocation-light Printf implementation
// used for kernel diagnostics. It understands a narrow subset of the verbs
// supported by the standard fmt package, which keeps it usable from code
// paths that run before a full console is attached.
package kfmt

import (
	"io"
)

// maxBufSize bounds the scratch buffer used for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf  [maxBufSize]byte
	singleByte = make([]byte, 1)

	// earlyBuf retains output written before SetOutputSink is called.
	earlyBuf ringBuffer

	// outputSink receives Printf output once attached. Nil means
	// "buffer into earlyBuf".
	outputSink io.Writer
)

// SetOutputSink directs future Printf output to w, first draining anything
// accumulated in the early ring buffer into it. Passing nil reverts to
// buffering.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w == nil {
		return
	}
	dropped := earlyBuf.Dropped()
	io.Copy(w, &earlyBuf)
	if dropped > 0 {
		Fprintf(w, "kfmt: %d bytes of early boot output were dropped before a console was attached\n", dropped)
	}
}

// FlushRingBuffer copies any output accumulated in the early ring buffer to
// w without requiring SetOutputSink to be called first.
func FlushRingBuffer(w io.Writer) {
	io.Copy(w, &earlyBuf)
}

// Printf formats according to a format specifier and writes to the current
// output sink (or the early ring buffer, if none has been attached yet).
//
// Supported verbs:
//
//	%s  string or []byte, left-padded with spaces to the given width
//	%c  byte, printed as a single character
//	%t  bool, printed as "true" or "false"
//	%d  integer, base 10
//	%o  integer, base 8, zero-padded
//	%x  integer, base 16 (lower-case), zero-padded
//
// A decimal width may precede any verb, e.g. "%4d".
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w. A nil w buffers into the
// early ring buffer instead.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextCh                       byte
		argIndex                     int
		blockStart, blockEnd, padLen int
		fmtLen                       = len(format)
	)

	for blockEnd < fmtLen {
		nextCh = format[blockEnd]
		if nextCh != '%' {
			blockEnd++
			continue
		}

		if blockStart < blockEnd {
			doWrite(w, []byte(format[blockStart:blockEnd]))
		}

		padLen = 0
		blockEnd++
	parseFmt:
		for ; blockEnd < fmtLen; blockEnd++ {
			nextCh = format[blockEnd]
			switch {
			case nextCh == '%':
				doWrite(w, []byte{'%'})
				break parseFmt
			case nextCh >= '0' && nextCh <= '9':
				padLen = (padLen * 10) + int(nextCh-'0')
				continue
			case nextCh == 'd' || nextCh == 'x' || nextCh == 'o' || nextCh == 's' || nextCh == 't' || nextCh == 'c':
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break parseFmt
				}

				switch nextCh {
				case 'o':
					fmtInt(w, args[argIndex], 8, padLen)
				case 'd':
					fmtInt(w, args[argIndex], 10, padLen)
				case 'x':
					fmtInt(w, args[argIndex], 16, padLen)
				case 's':
					fmtString(w, args[argIndex], padLen)
				case 't':
					fmtBool(w, args[argIndex])
				case 'c':
					fmtChar(w, args[argIndex])
				}

				argIndex++
				break parseFmt
			default:
				doWrite(w, errNoVerb)
				break parseFmt
			}
		}
		blockStart, blockEnd = blockEnd+1, blockEnd+1
	}

	if blockStart != blockEnd {
		doWrite(w, []byte(format[blockStart:blockEnd]))
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}
	if b {
		doWrite(w, trueValue)
	} else {
		doWrite(w, falseValue)
	}
}

func fmtChar(w io.Writer, v interface{}) {
	switch c := v.(type) {
	case byte:
		doWrite(w, []byte{c})
	case rune:
		doWrite(w, []byte(string(c)))
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, padLen int) {
	switch val := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(val))
		doWrite(w, []byte(val))
	case []byte:
		fmtRepeat(w, ' ', padLen-len(val))
		doWrite(w, val)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	singleByte[0] = ch
	for i := 0; i < count; i++ {
		doWrite(w, singleByte)
	}
}

// fmtInt prints v, which must be a built-in integer type, in the requested
// base with the requested left padding.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		sval             int64
		uval             uint64
		divider          uint64
		remainder        uint64
		padCh            byte
		left, right, end int
	)

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	switch base {
	case 8:
		divider, padCh = 8, '0'
	case 10:
		divider, padCh = 10, ' '
	case 16:
		divider, padCh = 16, '0'
	}

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uint:
		uval = uint64(t)
	case uintptr:
		uval = uint64(t)
	case int8:
		sval = int64(t)
	case int16:
		sval = int64(t)
	case int32:
		sval = int64(t)
	case int64:
		sval = t
	case int:
		sval = int64(t)
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for right < maxBufSize {
		remainder = uval % divider
		if remainder < 10 {
			numFmtBuf[right] = byte(remainder) + '0'
		} else {
			numFmtBuf[right] = byte(remainder-10) + 'a'
		}
		right++

		uval /= divider
		if uval == 0 {
			break
		}
	}

	for ; right-left < padLen; right++ {
		numFmtBuf[right] = padCh
	}

	if sval < 0 {
		for end = right - 1; numFmtBuf[end] == ' '; end-- {
		}
		if end == right-1 {
			right++
		}
		numFmtBuf[end+1] = '-'
	}

	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		numFmtBuf[left], numFmtBuf[right] = numFmtBuf[right], numFmtBuf[left]
	}

	doWrite(w, numFmtBuf[0:end])
}

func doWrite(w io.Writer, p []byte) {
	if w != nil {
		w.Write(p)
	} else {
		earlyBuf.Write(p)
	}
}
