package s4

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/argus-cyclist/waterrower-gateway/internal/frame"
	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// recWriter is the open handle for an in-progress recording.
type recWriter struct {
	file   *os.File
	writer *bufio.Writer
	unsub  func()
}

// recordLine is one NDJSON line in a recording file: the wire schema is
// {"time": <epoch_ms_int>, "type": "datapoint"|"hardwaretype"|"other",
// "data": <string>} (§6.5).
type recordLine struct {
	Time int64  `json:"time"`
	Type string `json:"type"`
	Data string `json:"data"`
}

func kindToWire(k frame.Kind) string {
	switch k {
	case frame.KindHardwareType:
		return "hardwaretype"
	case frame.KindDatapoint:
		return "datapoint"
	case frame.KindPulse:
		return "pulse"
	default:
		return "other"
	}
}

func wireToKind(s string) frame.Kind {
	switch s {
	case "hardwaretype":
		return frame.KindHardwareType
	case "datapoint":
		return frame.KindDatapoint
	case "pulse":
		return frame.KindPulse
	default:
		return frame.KindOther
	}
}

// StartRecording subscribes to the raw reads stream and appends every
// non-pulse frame to dataDir/name as newline-delimited JSON, one record
// per line, until StopRecording is called or the driver closes (§6.5:
// pulse frames are too frequent to be useful and are excluded).
func (d *Driver) StartRecording(name string) error {
	d.recMu.Lock()
	defer d.recMu.Unlock()

	if d.recFile != nil {
		return wrerr.New(wrerr.KindIllegalState, "s4.StartRecording", nil)
	}

	path := filepath.Join(d.dataDir, name)
	f, err := os.Create(path)
	if err != nil {
		return wrerr.New(wrerr.KindSerialIO, "s4.StartRecording", err)
	}

	w := &recWriter{file: f, writer: bufio.NewWriter(f)}
	ch, unsub := d.reads.Subscribe()
	w.unsub = unsub
	d.recFile = w

	go func() {
		for rr := range ch {
			if rr.Kind == frame.KindPulse {
				continue
			}
			rec := recordLine{Time: rr.Time.UnixMilli(), Type: kindToWire(rr.Kind), Data: rr.Line}
			b, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			d.recMu.Lock()
			if d.recFile == w {
				w.writer.Write(b)
				w.writer.WriteByte('\n')
				w.writer.Flush()
			}
			d.recMu.Unlock()
		}
	}()

	return nil
}

// StopRecording ends any in-progress recording. Idempotent.
func (d *Driver) StopRecording() {
	d.recMu.Lock()
	w := d.recFile
	d.recFile = nil
	d.recMu.Unlock()

	if w == nil {
		return
	}
	w.unsub()
	w.writer.Flush()
	w.file.Close()
}

// PlayRecording replays dataDir/name onto the reads stream, preserving
// the original inter-frame gaps, and runs asynchronously. The returned
// channel is closed when playback completes. Close does not stop a
// replay: it runs to the end of the file, and frames replayed after
// Close are dropped because the reads stream is closed. Replay
// does not touch the register table or the datapoints stream; it is a
// diagnostic echo of exactly what was received (§6.5).
func (d *Driver) PlayRecording(name string) (<-chan struct{}, error) {
	path := filepath.Join(d.dataDir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, wrerr.New(wrerr.KindSerialIO, "s4.PlayRecording", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer f.Close()

		scanner := bufio.NewScanner(f)
		var prevTimeMS int64
		first := true
		for scanner.Scan() {
			var rec recordLine
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				d.logger.Warn("s4: malformed recording line, skipping", zap.Error(err))
				continue
			}
			if !first {
				gap := time.Duration(rec.Time-prevTimeMS) * time.Millisecond
				if gap > 0 {
					time.Sleep(gap)
				}
			}
			first = false
			prevTimeMS = rec.Time
			d.reads.Publish(RawRead{
				Time: time.UnixMilli(rec.Time),
				Kind: wireToKind(rec.Type),
				Line: rec.Data,
			})
		}
	}()

	return done, nil
}
