package s4

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-cyclist/waterrower-gateway/internal/frame"
)

func TestRecording_WritesNonPulseFramesAsNDJSON(t *testing.T) {
	dir := t.TempDir()
	d := NewDriver(Config{PollInterval: -1, DataDir: dir}, nil)

	require.NoError(t, d.StartRecording("session.ndjson"))

	base := time.UnixMilli(1_700_000_000_000)
	d.reads.Publish(RawRead{Time: base, Kind: frame.KindHardwareType, Line: "_WR_21000031"})
	d.reads.Publish(RawRead{Time: base.Add(50 * time.Millisecond), Kind: frame.KindPulse, Line: "P1"})
	d.reads.Publish(RawRead{Time: base.Add(200 * time.Millisecond), Kind: frame.KindDatapoint, Line: "IDS1A912"})

	time.Sleep(100 * time.Millisecond)
	d.StopRecording()

	f, err := os.Open(filepath.Join(dir, "session.ndjson"))
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2, "pulse frames must be excluded from the recording")
	assert.Contains(t, lines[0], "hardwaretype")
	assert.Contains(t, lines[1], "datapoint")
}

func TestPlayRecording_RepublishesOntoReadsStream(t *testing.T) {
	dir := t.TempDir()
	d := NewDriver(Config{PollInterval: -1, DataDir: dir}, nil)

	content := `{"time":1000,"type":"hardwaretype","data":"_WR_21000031"}
{"time":1150,"type":"datapoint","data":"IDS1A912"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rec.ndjson"), []byte(content), 0o644))

	ch, unsub := d.Reads().Subscribe()
	defer unsub()

	recvAt := make([]time.Time, 0, 2)
	done, err := d.PlayRecording("rec.ndjson")
	require.NoError(t, err)

	var got []RawRead
	for i := 0; i < 2; i++ {
		select {
		case rr := <-ch:
			got = append(got, rr)
			recvAt = append(recvAt, time.Now())
		case <-time.After(time.Second):
			t.Fatal("replay never republished the recorded frames")
		}
	}
	<-done

	require.Len(t, got, 2)
	assert.Equal(t, frame.KindHardwareType, got[0].Kind)
	assert.Equal(t, "_WR_21000031", got[0].Line)
	assert.Equal(t, frame.KindDatapoint, got[1].Kind)
	assert.Equal(t, "IDS1A912", got[1].Line)

	// Property 3: replay preserves the recorded inter-frame gap (150ms
	// here) within a ±20ms tolerance.
	gap := recvAt[1].Sub(recvAt[0])
	assert.InDelta(t, 150*time.Millisecond, gap, float64(20*time.Millisecond))
}
