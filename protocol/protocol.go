// Package protocol defines the contract between the engine and a test binary:
// the environment variables a child is launched with, the exit codes it must
// use, and the records it writes to the result side channel.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables understood by test binaries
const (
	// EnvTest names the single test the child must run before exiting
	EnvTest = "OP_ISOLATOR_TEST"
	// EnvResultFD is the file descriptor of the result side channel
	EnvResultFD = "OP_ISOLATOR_RESULT_FD"
	// EnvList asks the binary to print its test listing and exit
	EnvList = "OP_ISOLATOR_LIST"
)

// ResultFD is the descriptor the engine always passes the side channel on.
// os/exec maps ExtraFiles[0] to fd 3.
const ResultFD = 3

// Child exit codes
const (
	ExitPassed   = 0
	ExitFailed   = 1
	ExitPanicked = 101
)

// RecordKind identifies a side-channel record
type RecordKind string

const (
	KindStageStart RecordKind = "stage_start"
	KindStageEnd   RecordKind = "stage_end"
	KindFailed     RecordKind = "failed"
	KindPanicked   RecordKind = "panicked"
)

// Size limits of the side channel. Writers cut messages at MaxMessageBytes;
// readers keep at most MaxRecordBytes of a line and drain the rest.
const (
	MaxMessageBytes = 64 * 1024
	MaxRecordBytes  = 1024 * 1024
)

const truncatedSuffix = "... (truncated)"

// Record is one JSON line on the side channel. Kind is encoded first so that
// a record cut at MaxRecordBytes can still be classified.
type Record struct {
	Kind    RecordKind `json:"kind"`
	Stage   string     `json:"stage,omitempty"`
	OK      bool       `json:"ok,omitempty"`
	Message string     `json:"message,omitempty"`
	Time    time.Time  `json:"time"`
}

// Writer encodes records onto the side channel, one JSON object per line
type Writer struct {
	enc *json.Encoder
}

// NewWriter returns a Writer on w. A nil w yields a Writer that drops every record.
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		w = io.Discard
	}
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes a record, stamping the time if unset
func (w *Writer) Write(rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	rec.Message = truncateMessage(rec.Message, MaxMessageBytes)
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write %s record: %w", rec.Kind, err)
	}
	return nil
}

func truncateMessage(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	return strings.ToValidUTF8(msg[:limit-len(truncatedSuffix)], "") + truncatedSuffix
}

// ReadRecords decodes every record until EOF. Lines that are not valid records
// are skipped: a child that dies mid-write leaves a torn last line. The reader
// never stops before EOF, so a child is never blocked writing to the channel.
func ReadRecords(r io.Reader) []Record {
	var records []Record
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, oversized, err := readLine(br, MaxRecordBytes)
		if len(line) > 0 {
			if rec, ok := decodeRecord(line, oversized); ok {
				records = append(records, rec)
			}
		}
		if err != nil {
			return records
		}
	}
}

// readLine returns up to limit bytes of the next line, discarding the rest
func readLine(br *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		keep := min(len(chunk), limit-len(line))
		line = append(line, chunk[:keep]...)
		if keep < len(chunk) {
			oversized = true
		}
		if err != nil || !isPrefix {
			return line, oversized, err
		}
	}
}

func decodeRecord(line []byte, oversized bool) (Record, bool) {
	var rec Record
	if !oversized {
		if err := json.Unmarshal(line, &rec); err != nil || rec.Kind == "" {
			return Record{}, false
		}
		return rec, true
	}

	// Recover the leading fields of a cut record, up to the first value that was cut
	dec := json.NewDecoder(bytes.NewReader(line))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return Record{}, false
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			break
		}
		val, err := dec.Token()
		if err != nil {
			break
		}
		str, _ := val.(string)
		switch key {
		case "kind":
			rec.Kind = RecordKind(str)
		case "stage":
			rec.Stage = str
		case "message":
			rec.Message = str
		case "ok":
			rec.OK, _ = val.(bool)
		}
	}
	if rec.Kind == "" {
		return Record{}, false
	}
	if rec.Message == "" {
		rec.Message = fmt.Sprintf("%s record exceeded %d bytes and was truncated", rec.Kind, MaxRecordBytes)
	}
	return rec, true
}

// LastVerdict returns the last failed or panicked record, if any
func LastVerdict(records []Record) (Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Kind == KindFailed || records[i].Kind == KindPanicked {
			return records[i], true
		}
	}
	return Record{}, false
}

// OpenResultChannel opens the side channel named by EnvResultFD.
// It returns nil when the variable is unset.
func OpenResultChannel() (*os.File, error) {
	raw := os.Getenv(EnvResultFD)
	if raw == "" {
		return nil, nil
	}
	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("invalid %s value %q", EnvResultFD, raw)
	}
	return os.NewFile(uintptr(fd), "op-isolator-results"), nil
}
