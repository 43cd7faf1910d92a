package s4

import "github.com/argus-cyclist/waterrower-gateway/internal/frame"

// Radix selects how a register's ASCII payload digits are parsed.
type Radix int

const (
	Radix10 Radix = 10
	Radix16 Radix = 16
)

// Register is one named S4 memory location. address/width/radix are
// immutable after construction; CurrentValue is the only mutable field,
// and it is written exclusively by the Driver that owns this table.
type Register struct {
	Name         string
	Address      string
	Width        frame.Width
	Radix        Radix
	CurrentValue int
}

// names referenced elsewhere in the gateway (§4.E scratchpad mapping,
// §4.B reference poll subset).
const (
	RegStrokeRate    = "stroke_rate"
	RegDistance      = "distance"
	RegMSTotal       = "m_s_total"
	RegMSAverage     = "m_s_average"
	RegTotalKcal     = "total_kcal"
	RegStrokesCnt    = "strokes_cnt"
	RegKcalWatts     = "kcal_watts"
	RegMph           = "mph"
	RegMSDistanceDec = "m_s_distance_dec"
	RegMSDistance    = "m_s_distance"
	RegClockDownDec  = "clock_down_dec"
	RegClockDown     = "clock_down"
	RegTotalDis      = "total_dis"
	RegTankVolume    = "tank_volume"
	RegStrokeAverage = "stroke_average"
	RegStrokePull    = "stroke_pull"
	RegDisplaySec    = "display_sec"
	RegDisplayMin    = "display_min"
	RegDisplayHr     = "display_hr"
)

// defaultRegisterTable is the register set from spec §6.2, the minimum
// required to implement §4.E's scratchpad mapping and the reference poll
// subset of §4.B.
func defaultRegisterTable() []Register {
	return []Register{
		{Name: RegMph, Address: "1A3", Width: frame.WidthDouble, Radix: Radix10},
		{Name: RegStrokeRate, Address: "1A9", Width: frame.WidthSingle, Radix: Radix16},
		{Name: RegDistance, Address: "057", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegMSDistanceDec, Address: "054", Width: frame.WidthSingle, Radix: Radix16},
		{Name: RegMSDistance, Address: "055", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegClockDownDec, Address: "05A", Width: frame.WidthSingle, Radix: Radix16},
		{Name: RegClockDown, Address: "05B", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegTotalDis, Address: "081", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegKcalWatts, Address: "088", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegTotalKcal, Address: "08A", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegTankVolume, Address: "0A9", Width: frame.WidthSingle, Radix: Radix16},
		{Name: RegStrokesCnt, Address: "140", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegStrokeAverage, Address: "142", Width: frame.WidthSingle, Radix: Radix16},
		{Name: RegStrokePull, Address: "143", Width: frame.WidthSingle, Radix: Radix16},
		{Name: RegMSTotal, Address: "148", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegMSAverage, Address: "14A", Width: frame.WidthDouble, Radix: Radix16},
		{Name: RegDisplaySec, Address: "1E1", Width: frame.WidthSingle, Radix: Radix10},
		{Name: RegDisplayMin, Address: "1E2", Width: frame.WidthSingle, Radix: Radix10},
		{Name: RegDisplayHr, Address: "1E3", Width: frame.WidthSingle, Radix: Radix10},
	}
}

// DefaultPollSubset is the reference active subset from §4.B's Polling
// section.
func DefaultPollSubset() []string {
	return []string{
		RegStrokeRate,
		RegKcalWatts,
		RegStrokesCnt,
		RegMSTotal,
		RegTotalKcal,
		RegMSAverage,
	}
}

// registerTable is the driver-owned mutable table (§9 design note: move
// the register table off module-level mutable state and into the driver
// instance). It indexes by both name and address for the two access
// paths: read_datapoints (by name) and the frame handler (by address).
type registerTable struct {
	byName    map[string]*Register
	byAddress map[string]*Register
	order     []string
}

func newRegisterTable(defs []Register) *registerTable {
	t := &registerTable{
		byName:    make(map[string]*Register, len(defs)),
		byAddress: make(map[string]*Register, len(defs)),
	}
	for i := range defs {
		r := defs[i]
		t.byName[r.Name] = &r
		t.byAddress[r.Address] = t.byName[r.Name]
		t.order = append(t.order, r.Name)
	}
	return t
}

func (t *registerTable) byNameLookup(name string) (*Register, bool) {
	r, ok := t.byName[name]
	return r, ok
}

func (t *registerTable) byAddressLookup(address string) (*Register, bool) {
	r, ok := t.byAddress[address]
	return r, ok
}

func (t *registerTable) names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
