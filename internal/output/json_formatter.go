package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mrzor/execsnoop/internal/record"
	"github.com/mrzor/execsnoop/internal/timesync"
)

// jsonEvent is one output line. Arguments are joined by spaces.
type jsonEvent struct {
	Timestamp     uint64 `json:"timestamp"`
	Time          string `json:"time,omitempty"`
	Comm          string `json:"comm"`
	Pid           uint32 `json:"pid"`
	Tid           uint32 `json:"tid"`
	UID           uint32 `json:"uid"`
	GID           uint32 `json:"gid"`
	Pcomm         string `json:"pcomm"`
	Ppid          uint32 `json:"ppid"`
	Error         int32  `json:"error"`
	ArgsCount     int32  `json:"args_count"`
	ArgsTruncated bool   `json:"args_truncated,omitempty"`
	Cwd           string `json:"cwd"`
	Args          string `json:"args"`
}

// JSONFormatter writes one JSON object per exec.
type JSONFormatter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	clock *timesync.Converter
}

// NewJSONFormatter writes to w. clock may be nil, in which case only the
// raw boot clock timestamp is written.
func NewJSONFormatter(w io.Writer, clock *timesync.Converter) *JSONFormatter {
	return &JSONFormatter{enc: json.NewEncoder(w), clock: clock}
}

// HandleExec implements ExecHandler.
func (f *JSONFormatter) HandleExec(ev *record.Event) error {
	out := jsonEvent{
		Timestamp:     ev.Timestamp,
		Comm:          ev.Comm,
		Pid:           ev.Pid,
		Tid:           ev.Tid,
		UID:           ev.UID,
		GID:           ev.GID,
		Pcomm:         ev.ParentComm,
		Ppid:          ev.Ppid,
		Error:         ev.Error,
		ArgsCount:     ev.ArgsCount,
		ArgsTruncated: ev.Truncated,
		Cwd:           ev.Cwd,
		Args:          ev.CommandLine(),
	}
	if f.clock != nil {
		out.Time = f.clock.BootToWallClock(ev.Timestamp).UTC().Format(time.RFC3339Nano)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(&out); err != nil {
		return fmt.Errorf("writing JSON event: %w", err)
	}
	return nil
}
