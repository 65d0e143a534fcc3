// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package recorder provides structured event recording for the backup
// daemon (backup written, archive created, target pruned, data-integrity
// surfaced, etc.) for observability and for the `backupctl events` command.
// Events are kept in an in-memory ring buffer and can be queried via the
// recorder API. Optionally, events are also written to a rotating file when
// InitEventFile is called. File writes are asynchronous (non-blocking) so
// the hot path (the backup pipeline) never waits on disk I/O.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kestrelcove/protectbackup/pkg/utils"
)

const (
	// DefaultBufferSize is the default maximum number of events to retain in memory.
	DefaultBufferSize = 1000
	// DefaultEventFileMaxSizeMB is the default max size in MB before rotating (1GB).
	DefaultEventFileMaxSizeMB = 1024
	// DefaultEventFileMaxBackups is the default number of rotated files to keep.
	DefaultEventFileMaxBackups = 5
	// eventFileChanCap is the buffer size for async file writes. When full, new
	// events are dropped for file only (ring buffer still updated).
	eventFileChanCap = 10000
	// eventFileFlushInterval is how often the file writer flushes to disk when idle.
	eventFileFlushInterval = 100 * time.Millisecond
)

// EventType represents the kind of operation that was recorded.
type EventType string

const (
	EventTypeEventObserved    EventType = "event_observed"
	EventTypeEventReady       EventType = "event_ready"
	EventTypeClipFetched      EventType = "clip_fetched"
	EventTypeClipFetchRetried EventType = "clip_fetch_retried"
	EventTypeClipMissing      EventType = "clip_missing"
	EventTypeBackupWritten    EventType = "backup_written"
	EventTypeBackupFailed     EventType = "backup_failed"
	EventTypeTargetPruned     EventType = "target_pruned"
	EventTypeEventPruned      EventType = "event_pruned"
	EventTypeArchiveCreated   EventType = "archive_created"
	EventTypeArchiveFailed    EventType = "archive_failed"
	EventTypeArchivePruned    EventType = "archive_pruned"
	EventTypeDataIntegrity    EventType = "data_integrity"
	EventTypeTargetQuarantine EventType = "target_quarantine"
)

type EventStatus string

const (
	Normal  EventStatus = "Normal"
	Warning EventStatus = "Warning"
)

// Event represents a single recorded operation.
type Event struct {
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	EventID     string                 `json:"eventID,omitempty"`
	Target      string                 `json:"target,omitempty"`
	EventStatus EventStatus            `json:"eventStatus,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// Recorder records events in a bounded in-memory buffer. Optionally writes
// each event to a rotating file asynchronously when InitEventFile was
// called. When the event file is enabled, List() reads from the file(s) so
// data survives restarts.
type Recorder struct {
	mu         sync.RWMutex
	events     []Event
	size       int
	next       int
	count      int
	fileCh     chan Event // nil when file disabled; buffered for async write
	fileWg     sync.WaitGroup
	fileClosed atomic.Bool

	subsMu sync.RWMutex
	subs   []chan Event // buffered in-process subscriber channels; each has cap 256

	eventFileMu         sync.RWMutex
	eventFilePath       string // set when InitEventFile is called
	eventFileMaxBackups int
}

// Global is the process-wide recorder instance.
var Global = New(DefaultBufferSize)

// New creates a recorder that keeps at most size events (ring buffer).
func New(size int) *Recorder {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Recorder{
		events: make([]Event, size),
		size:   size,
	}
}

// InitEventFile enables async writing of events to a rotating file at eventFile.
func (r *Recorder) InitEventFile(eventFile string, maxSizeMB, maxBackups int) error {
	if eventFile == "" {
		return nil
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultEventFileMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = DefaultEventFileMaxBackups
	}
	dir := filepath.Dir(eventFile)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	lj := &lumberjack.Logger{
		Filename:   eventFile,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false,
	}
	bw := bufio.NewWriterSize(lj, 64*1024)
	ch := make(chan Event, eventFileChanCap)
	r.fileCh = ch
	r.eventFileMu.Lock()
	r.eventFilePath = eventFile
	r.eventFileMaxBackups = maxBackups
	r.eventFileMu.Unlock()
	r.fileWg.Add(1)
	go r.runFileWriter(bw, ch)
	return nil
}

func (r *Recorder) runFileWriter(w *bufio.Writer, ch <-chan Event) {
	defer r.fileWg.Done()
	tick := time.NewTicker(eventFileFlushInterval)
	defer tick.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = w.Flush()
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write(raw)
			_, _ = w.Write([]byte{'\n'})
		case <-tick.C:
			_ = w.Flush()
		}
	}
}

// CloseEventFile stops the async file writer and flushes remaining events.
// Idempotent. No Record() should be called after this.
func (r *Recorder) CloseEventFile() {
	if r.fileClosed.Swap(true) {
		return
	}
	ch := r.fileCh
	if ch == nil {
		return
	}
	r.fileCh = nil
	close(ch)
	r.fileWg.Wait()
}

// Subscribe returns a channel that receives a copy of each new event from
// now on, within the same process (`backupctl events --follow` runs in its
// own process and polls the event file instead). Buffer size is 256; slow
// subscribers drop events rather than block Record().
func (r *Recorder) Subscribe() (ch <-chan Event, unsub func()) {
	c := make(chan Event, 256)
	r.subsMu.Lock()
	r.subs = append(r.subs, c)
	r.subsMu.Unlock()
	return c, func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for i, sub := range r.subs {
			if sub == c {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				close(c)
				return
			}
		}
	}
}

// Record appends one event. If the buffer is full, the oldest event is overwritten.
func (r *Recorder) Record(_ context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.mu.Lock()
	r.events[r.next] = ev
	r.next = (r.next + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	r.mu.Unlock()

	ch := r.fileCh
	if ch != nil && !r.fileClosed.Load() {
		select {
		case ch <- ev:
		default:
		}
	}

	r.subsMu.RLock()
	subs := make([]chan Event, len(r.subs))
	copy(subs, r.subs)
	r.subsMu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (r *Recorder) listFromFile(eventFile string, maxBackups, limit int, query []string, startTime *time.Time) []Event {
	return ReadEventFile(eventFile, maxBackups, limit, query, startTime)
}

// ReadEventFile reads rotated JSONL event-file backups oldest-to-newest,
// applying an optional substring query and start-time filter and keeping at
// most the most recent limit entries. Exported so `backupctl events` can
// read a running daemon's event file directly, without a Recorder instance
// of its own.
func ReadEventFile(eventFile string, maxBackups, limit int, query []string, startTime *time.Time) []Event {
	if limit <= 0 {
		limit = 100
	}
	var events []Event
	for i := maxBackups; i >= 1; i-- {
		path := eventFile + "." + strconv.Itoa(i)
		readEventsFromPath(path, &events, limit, query, startTime)
	}
	readEventsFromPath(eventFile, &events, limit, query, startTime)
	if len(events) == 0 {
		return nil
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

func readEventsFromPath(path string, events *[]Event, limit int, query []string, startTime *time.Time) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if len(query) != 0 {
			matched := false
			str := utils.BytesToString(line)
			for i := range query {
				if strings.Contains(str, query[i]) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if startTime != nil && ev.Timestamp.Before(*startTime) {
			continue
		}
		*events = append(*events, ev)
		if len(*events) > limit {
			*events = (*events)[1:]
		}
	}
}

// List returns the most recent events, up to limit (oldest-first within the
// returned slice). When an event file is configured, reads from it so data
// survives restarts; otherwise reads the in-memory ring buffer.
func (r *Recorder) List(limit int, query []string, startTime *time.Time) []Event {
	if limit <= 0 {
		limit = 100
	}
	r.eventFileMu.RLock()
	eventFile := r.eventFilePath
	maxBackups := r.eventFileMaxBackups
	r.eventFileMu.RUnlock()

	if eventFile != "" {
		return r.listFromFile(eventFile, maxBackups, limit, query, startTime)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.count
	if n > limit {
		n = limit
	}
	if n == 0 {
		return nil
	}
	out := make([]Event, n)
	start := 0
	if r.count == r.size {
		start = (r.next - r.count + r.size) % r.size
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % r.size
		out[i] = r.events[idx]
	}
	return out
}
