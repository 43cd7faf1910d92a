// Package activityfile encodes a finished training session into a FIT
// activity file (§3.1, §6.6). It is a sibling of internal/session, never
// imported by it: the session only ever returns a summary and a sample
// vector, and encoding is a separate, optional step.
package activityfile

import (
	"io"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/argus-cyclist/waterrower-gateway/internal/session"
)

// ActivityPayload is the encoder's only input: a session's start time,
// its summary, and its full sample vector.
type ActivityPayload struct {
	StartTime time.Time
	Summary   session.Summary
	Samples   []session.TrainingSample
}

// Encode writes p as a FIT activity file to w, performing the §6.6 unit
// conversions: distance m -> cm (x100), speed m/s -> mm/s (x1000),
// calories written as the whole-kcal value the session has already
// rounded to the nearest kcal, cadence carried 1:1 from stroke rate.
func Encode(w io.Writer, p ActivityPayload) error {
	fileIDMesg := mesgdef.FileId{
		Type:         typedef.FileActivity,
		Manufacturer: typedef.ManufacturerDevelopment,
		Product:      0,
		TimeCreated:  p.StartTime,
	}

	fit := proto.FIT{}
	fit.Messages = append(fit.Messages, fileIDMesg.ToMesg(nil))

	for _, sample := range p.Samples {
		fit.Messages = append(fit.Messages, recordFor(p.StartTime, sample).ToMesg(nil))
	}

	endTime := p.StartTime.Add(time.Duration(p.Summary.DurationS) * time.Second)

	eventMesg := mesgdef.Event{
		Timestamp: endTime,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStopAll,
	}
	fit.Messages = append(fit.Messages, eventMesg.ToMesg(nil))

	lapMesg := mesgdef.Lap{
		Timestamp:        endTime,
		StartTime:        p.StartTime,
		TotalElapsedTime: uint32(p.Summary.DurationS) * 1000,
		TotalTimerTime:   uint32(p.Summary.DurationS) * 1000,
		TotalDistance:    distanceScaled(p.Summary.DistanceM),
		AvgPower:         uint16(p.Summary.AvgPowerW),
		MaxPower:         uint16(p.Summary.MaxPowerW),
		AvgHeartRate:     uint8(p.Summary.AvgHeartRate),
		MaxHeartRate:     uint8(p.Summary.MaxHeartRate),
		TotalCalories:    uint16(p.Summary.TotalCalories),
		Event:            typedef.EventLap,
		EventType:        typedef.EventTypeStop,
	}
	fit.Messages = append(fit.Messages, lapMesg.ToMesg(nil))

	sessionMesg := mesgdef.Session{
		Timestamp:        endTime,
		StartTime:        p.StartTime,
		TotalElapsedTime: uint32(p.Summary.DurationS) * 1000,
		TotalTimerTime:   uint32(p.Summary.DurationS) * 1000,
		TotalDistance:    distanceScaled(p.Summary.DistanceM),
		AvgPower:         uint16(p.Summary.AvgPowerW),
		MaxPower:         uint16(p.Summary.MaxPowerW),
		AvgHeartRate:     uint8(p.Summary.AvgHeartRate),
		MaxHeartRate:     uint8(p.Summary.MaxHeartRate),
		TotalCalories:    uint16(p.Summary.TotalCalories),
		Sport:            typedef.SportRowing,
		SubSport:         typedef.SubSportIndoorRowing,
		Event:            typedef.EventSession,
		EventType:        typedef.EventTypeStop,
		Trigger:          typedef.SessionTriggerActivityEnd,
	}
	fit.Messages = append(fit.Messages, sessionMesg.ToMesg(nil))

	return encoder.New(w).Encode(&fit)
}

func recordFor(startTime time.Time, s session.TrainingSample) *mesgdef.Record {
	rec := &mesgdef.Record{
		Timestamp: startTime.Add(time.Duration(s.ElapsedS) * time.Second),
	}
	if s.DistanceM != nil {
		rec.Distance = distanceScaled(*s.DistanceM)
	}
	if s.SpeedMps != nil {
		rec.EnhancedSpeed = uint32(*s.SpeedMps * 1000)
	}
	if s.PowerW != nil {
		rec.Power = uint16(*s.PowerW)
	}
	if s.StrokeRate != nil {
		rec.Cadence = uint8(*s.StrokeRate)
	}
	if s.HeartRate != nil {
		rec.HeartRate = uint8(*s.HeartRate)
	}
	return rec
}

func distanceScaled(meters float64) uint32 {
	return uint32(meters * 100)
}
