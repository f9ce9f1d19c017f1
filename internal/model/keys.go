package model

// Quantities are non-negative energy amounts over a timeslice unless noted.
// Capacities are in capacity units (e.g. GW); CapacityToActivity converts one
// unit of capacity to a year of output at full utilization.

// TechKey identifies a technology within its sector.
type TechKey struct {
	Sector     string
	Technology string
}

// CommodityTS addresses a commodity in one timeslice.
type CommodityTS struct {
	Commodity string
	Timeslice int
}

// TechTS addresses a technology's activity in one timeslice.
type TechTS struct {
	Technology string
	Timeslice  int
}

// FlowKey addresses an input commodity flow of a technology in one timeslice.
type FlowKey struct {
	Technology string
	Commodity  string
	Timeslice  int
}

// CommodityTable is a (commodity, timeslice) -> quantity table.
type CommodityTable map[CommodityTS]float64

// Clone returns an independent copy.
func (t CommodityTable) Clone() CommodityTable {
	out := make(CommodityTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Add accumulates v into key k.
func (t CommodityTable) Add(k CommodityTS, v float64) {
	if v == 0 {
		return
	}
	t[k] += v
}

// Total sums every entry for commodity c.
func (t CommodityTable) Total(c string) float64 {
	sum := 0.0
	for k, v := range t {
		if k.Commodity == c {
			sum += v
		}
	}
	return sum
}

// Status of one year's market clearing.
type Status string

const (
	StatusInitialized           Status = "INITIALIZED"
	StatusIterating             Status = "ITERATING"
	StatusConverged             Status = "CONVERGED"
	StatusMaxIterationsExceeded Status = "MAX_ITERATIONS_EXCEEDED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusConverged || s == StatusMaxIterationsExceeded
}
