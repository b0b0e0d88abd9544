package telnet

import (
	"bufio"
	"errors"
	"strings"

	"enginewatch/strutil"
)

// Telnet protocol bytes (RFC 854).
const (
	IAC  = 255 // Interpret As Command
	DONT = 254
	DO   = 253
	WONT = 252
	WILL = 251
	SB   = 250 // Subnegotiation begins
	SE   = 240 // Subnegotiation ends
)

const maxCommandLength = 64

// ErrLineTooLong reports an input line over maxCommandLength bytes.
var ErrLineTooLong = errors.New("telnet: input line too long")

// lineReader reads command lines, discarding telnet negotiation and control
// bytes. CR, LF and CRLF all terminate a line.
type lineReader struct {
	r           *bufio.Reader
	skipNextEOL bool
}

func newLineReader(r *bufio.Reader) *lineReader {
	return &lineReader{r: r}
}

// ReadLine returns the next line, trimmed and upper-cased.
func (l *lineReader) ReadLine() (string, error) {
	var line []byte
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			return "", err
		}
		if l.skipNextEOL {
			l.skipNextEOL = false
			if b == '\n' || b == 0x00 {
				continue
			}
		}
		switch {
		case b == IAC:
			if err := l.consumeIAC(); err != nil {
				return "", err
			}
			continue
		case b == '\n':
			return normalizeCommand(line), nil
		case b == '\r':
			l.skipNextEOL = true
			return normalizeCommand(line), nil
		case b == 0x08 || b == 0x7f:
			if len(line) > 0 {
				line = line[:len(line)-1]
			}
			continue
		case b < 0x20 || b > 0x7e:
			continue
		}
		if len(line) >= maxCommandLength {
			return "", ErrLineTooLong
		}
		line = append(line, b)
	}
}

func (l *lineReader) consumeIAC() error {
	cmd, err := l.r.ReadByte()
	if err != nil {
		return err
	}
	switch cmd {
	case DO, DONT, WILL, WONT:
		_, err = l.r.ReadByte()
		return err
	case SB:
		for {
			b, err := l.r.ReadByte()
			if err != nil {
				return err
			}
			if b != IAC {
				continue
			}
			next, err := l.r.ReadByte()
			if err != nil {
				return err
			}
			if next == SE {
				return nil
			}
		}
	default:
		return nil
	}
}

func normalizeCommand(line []byte) string {
	return strutil.NormalizeUpper(string(line))
}

// toCRLF normalizes line endings for the wire.
func toCRLF(message string) string {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	return strings.ReplaceAll(message, "\n", "\r\n")
}
