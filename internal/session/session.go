// Package session implements the Training Session (§4.E): the state
// machine that merges S4 telemetry and heart-rate samples into a
// per-second stream and a minute-resolution sample vector, ready for
// summarisation or activity-file encoding.
package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argus-cyclist/waterrower-gateway/internal/broadcast"
	"github.com/argus-cyclist/waterrower-gateway/internal/hrm"
	"github.com/argus-cyclist/waterrower-gateway/internal/s4"
	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// State is the Training Session state machine (§3, §4.E).
type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateFinished
)

// everyNthTick is the minute-bucket rate: the sample vector gains one
// entry per 60 emission ticks, plus exactly one terminal snapshot on
// Stop (§4.E Emission).
const everyNthTick = 60

// DefaultEmissionInterval is the real-world emission cadence: one
// TrainingSample per second.
const DefaultEmissionInterval = time.Second

// Config controls the Session's emission cadence. The zero value picks
// DefaultEmissionInterval; tests set EmissionInterval to a small
// duration to drive minute-bucket behaviour (§8 S3) without waiting on
// real wall-clock seconds, the way s4.Config.PollInterval lets driver
// tests skip real poll waits.
type Config struct {
	EmissionInterval time.Duration
}

// TrainingSample is a per-second snapshot (§3). Optional fields are nil
// until their source has produced at least one value.
type TrainingSample struct {
	Timestamp    time.Time
	ElapsedS     int
	DistanceM    *float64
	StrokeRate   *int
	PowerW       *float64
	Calories     *int
	HeartRate    *int
	SpeedMps     *float64
	TotalStrokes *int
}

// Summary is the Session Summary (§3, §4.E.1).
type Summary struct {
	DurationS     int
	DistanceM     float64
	AvgHeartRate  float64
	MaxHeartRate  int
	AvgPowerW     float64
	MaxPowerW     float64
	TotalCalories int
	TotalStrokes  int
	SampleCount   int
}

// EventKind names a lifecycle or error signal (§4.E public contract).
type EventKind int

const (
	EventStarted EventKind = iota
	EventPaused
	EventResumed
	EventStopped
	EventError
)

// Event is one lifecycle/error signal. Summary is set only for
// EventStopped; Err is set only for EventError.
type Event struct {
	Kind    EventKind
	Summary Summary
	Err     error
}

// Session is the Training Session.
type Session struct {
	logger           *zap.Logger
	driver           *s4.Driver
	hrmClient        *hrm.Client
	emissionInterval time.Duration

	samplesOut *broadcast.Topic[TrainingSample]
	events     *broadcast.Topic[Event]

	mu            sync.Mutex
	id            string
	startTime     time.Time
	endTime       time.Time
	hasEndTime    bool
	state         State
	totalPausedMs int64
	pauseStart    time.Time
	samples       []TrainingSample
	tick          int

	scratch scratchpad

	cancelRun func()
	wg        sync.WaitGroup
}

// scratchpad is the session-owned mutable aggregate (§3 Ownership; §4.E
// Stream-to-scratchpad mapping). Never exposed externally.
type scratchpad struct {
	strokeRate       int
	haveStrokeRate   bool
	distance         int
	haveDistance     bool
	calories         float64
	haveCalories     bool
	totalStrokes     int
	haveTotalStrokes bool
	speed            float64
	haveSpeed        bool
	power            float64
	havePower        bool
	heartRate        int
	haveHeartRate    bool
}

// NewSession constructs an idle Session driving driver, and optionally
// hrmClient (nil if no heart-rate monitor is configured).
func NewSession(cfg Config, driver *s4.Driver, hrmClient *hrm.Client, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.EmissionInterval
	if interval == 0 {
		interval = DefaultEmissionInterval
	}
	return &Session{
		logger:           logger,
		driver:           driver,
		hrmClient:        hrmClient,
		emissionInterval: interval,
		samplesOut:       broadcast.NewTopic[TrainingSample](),
		events:           broadcast.NewTopic[Event](),
		state:            StateIdle,
	}
}

// ID returns the session's unique identifier, empty before Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Samples is the per-second training-sample stream.
func (s *Session) Samples() *broadcast.Topic[TrainingSample] { return s.samplesOut }

// Events is the lifecycle/error signal stream.
func (s *Session) Events() *broadcast.Topic[Event] { return s.events }

// Start transitions idle -> active. Requires the S4 Driver to already
// be connected.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return wrerr.New(wrerr.KindIllegalState, "session.Start", nil)
	}
	if !s.driver.IsConnected() {
		s.mu.Unlock()
		return wrerr.New(wrerr.KindIllegalState, "session.Start", nil)
	}

	s.id = uuid.NewString()
	s.startTime = time.Now()
	s.hasEndTime = false
	s.samples = nil
	s.tick = 0
	s.scratch = scratchpad{}
	s.state = StateActive
	s.mu.Unlock()

	if err := s.driver.Reset(); err != nil {
		s.logger.Warn("session: driver reset failed on start", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel

	s.wg.Add(1)
	go s.runDatapoints(ctx)

	if s.hrmClient != nil && s.hrmClient.IsConnected() {
		s.wg.Add(1)
		go s.runHeartRate(ctx)
	}

	s.wg.Add(1)
	go s.runEmission(ctx)

	s.events.Publish(Event{Kind: EventStarted})
	return nil
}

// Pause transitions active -> paused, capturing the pause instant.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return wrerr.New(wrerr.KindIllegalState, "session.Pause", nil)
	}
	s.pauseStart = time.Now()
	s.state = StatePaused
	s.events.Publish(Event{Kind: EventPaused})
	return nil
}

// Resume transitions paused -> active, accounting the paused interval.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return wrerr.New(wrerr.KindIllegalState, "session.Resume", nil)
	}
	s.totalPausedMs += time.Since(s.pauseStart).Milliseconds()
	s.state = StateActive
	s.events.Publish(Event{Kind: EventResumed})
	return nil
}

// Stop transitions active/paused -> finished, tears down subscriptions
// and owned resources, appends exactly one terminal snapshot, and
// returns the full sample vector.
func (s *Session) Stop() ([]TrainingSample, error) {
	s.mu.Lock()
	if s.state != StateActive && s.state != StatePaused {
		s.mu.Unlock()
		return nil, wrerr.New(wrerr.KindIllegalState, "session.Stop", nil)
	}
	s.state = StateFinished
	s.endTime = time.Now()
	s.hasEndTime = true
	s.mu.Unlock()

	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.wg.Wait()

	_ = s.driver.Close()
	if s.hrmClient != nil {
		_ = s.hrmClient.Disconnect()
	}

	final := s.buildSample()
	s.mu.Lock()
	s.samples = append(s.samples, final)
	samples := append([]TrainingSample(nil), s.samples...)
	s.mu.Unlock()

	summary := s.summaryFrom(samples)
	s.events.Publish(Event{Kind: EventStopped, Summary: summary})
	return samples, nil
}

// Summary computes the session summary on demand from the current
// sample vector (§4.E.1).
func (s *Session) Summary() Summary {
	s.mu.Lock()
	samples := append([]TrainingSample(nil), s.samples...)
	s.mu.Unlock()
	return s.summaryFrom(samples)
}

func (s *Session) runDatapoints(ctx context.Context) {
	defer s.wg.Done()
	ch, unsub := s.driver.Datapoints().Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				s.events.Publish(Event{Kind: EventError, Err: wrerr.New(wrerr.KindSerialIO, "session.runDatapoints", nil)})
				s.forceFinishIfActive()
				return
			}
			s.applyDatapoint(sample)
		}
	}
}

func (s *Session) runHeartRate(ctx context.Context) {
	defer s.wg.Done()
	ch, unsub := s.hrmClient.HeartRate().Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			s.applyHeartRate(sample)
		}
	}
}

// forceFinishIfActive implements §4.E: if the S4 Driver closes while
// the session is active, the session transitions to finished
// automatically.
func (s *Session) forceFinishIfActive() {
	s.mu.Lock()
	if s.state != StateActive && s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.state = StateFinished
	s.endTime = time.Now()
	s.hasEndTime = true
	s.mu.Unlock()

	if s.cancelRun != nil {
		s.cancelRun()
	}
}

func (s *Session) applyDatapoint(sample s4.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	switch sample.RegisterName {
	case s4.RegStrokeRate:
		s.scratch.strokeRate = sample.Value
		s.scratch.haveStrokeRate = true
	case s4.RegDistance:
		if !s.scratch.haveDistance || sample.Value > s.scratch.distance {
			s.scratch.distance = sample.Value
		}
		s.scratch.haveDistance = true
	case s4.RegTotalKcal:
		cal := float64(sample.Value) / 1000.0
		if !s.scratch.haveCalories || cal > s.scratch.calories {
			s.scratch.calories = cal
		}
		s.scratch.haveCalories = true
	case s4.RegStrokesCnt:
		s.scratch.totalStrokes = sample.Value
		s.scratch.haveTotalStrokes = true
	case s4.RegMSTotal:
		speed := float64(sample.Value) / 100.0
		s.scratch.speed = speed
		s.scratch.haveSpeed = true
		if speed > 0 {
			s.scratch.power = 2.8 * speed * speed * speed
			s.scratch.havePower = true
		}
	}
}

func (s *Session) applyHeartRate(sample hrm.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.scratch.heartRate = sample.BPM
	s.scratch.haveHeartRate = true
}

func (s *Session) runEmission(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.emissionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			active := s.state == StateActive
			s.mu.Unlock()
			if !active {
				continue
			}
			sample := s.buildSample()
			s.samplesOut.Publish(sample)

			s.mu.Lock()
			s.tick++
			if s.tick%everyNthTick == 0 {
				s.samples = append(s.samples, sample)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) buildSample() TrainingSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := TrainingSample{
		Timestamp: time.Now(),
		ElapsedS:  s.calculateDurationLocked(),
	}
	if s.scratch.haveDistance {
		v := float64(s.scratch.distance)
		ts.DistanceM = &v
	}
	if s.scratch.haveStrokeRate {
		v := s.scratch.strokeRate
		ts.StrokeRate = &v
	}
	if s.scratch.haveSpeed {
		speed := s.scratch.speed
		ts.SpeedMps = &speed
	}
	if s.scratch.havePower {
		power := s.scratch.power
		ts.PowerW = &power
	}
	if s.scratch.haveCalories {
		v := int(math.Round(s.scratch.calories))
		ts.Calories = &v
	}
	if s.scratch.haveHeartRate {
		v := s.scratch.heartRate
		ts.HeartRate = &v
	}
	if s.scratch.haveTotalStrokes {
		v := s.scratch.totalStrokes
		ts.TotalStrokes = &v
	}
	return ts
}

// calculateDurationLocked is calculateDuration for callers already
// holding s.mu.
func (s *Session) calculateDurationLocked() int {
	end := time.Now()
	if s.hasEndTime {
		end = s.endTime
	}
	elapsedMs := end.Sub(s.startTime).Milliseconds() - s.totalPausedMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return int(elapsedMs / 1000)
}

func (s *Session) summaryFrom(samples []TrainingSample) Summary {
	var sum Summary
	sum.SampleCount = len(samples)
	if len(samples) == 0 {
		return sum
	}

	last := samples[len(samples)-1]
	sum.DurationS = last.ElapsedS
	if last.DistanceM != nil {
		sum.DistanceM = *last.DistanceM
	}
	if last.Calories != nil {
		sum.TotalCalories = *last.Calories
	}
	if last.TotalStrokes != nil {
		sum.TotalStrokes = *last.TotalStrokes
	}

	var hrSum, hrCount float64
	var pwSum, pwCount float64
	for _, sample := range samples {
		if sample.HeartRate != nil {
			v := float64(*sample.HeartRate)
			hrSum += v
			hrCount++
			if *sample.HeartRate > sum.MaxHeartRate {
				sum.MaxHeartRate = *sample.HeartRate
			}
		}
		if sample.PowerW != nil {
			v := *sample.PowerW
			pwSum += v
			pwCount++
			if v > sum.MaxPowerW {
				sum.MaxPowerW = v
			}
		}
	}
	if hrCount > 0 {
		sum.AvgHeartRate = hrSum / hrCount
	}
	if pwCount > 0 {
		sum.AvgPowerW = pwSum / pwCount
	}
	return sum
}

// Close releases the session's streams. Call once, after Stop, on final
// shutdown.
func (s *Session) Close() {
	s.samplesOut.Close()
	s.events.Close()
}
