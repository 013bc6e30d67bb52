package kernel

// State is the position of the kernel in one invocation.
type State int

const (
	Idle State = iota
	LoadOffsets
	LoadWeights
	LoadTile
	ComputeTile
	StoreTile
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadOffsets:
		return "load_offsets"
	case LoadWeights:
		return "load_weights"
	case LoadTile:
		return "load_tile"
	case ComputeTile:
		return "compute_tile"
	case StoreTile:
		return "store_tile"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Stats counts the work done by the last (or current) invocation.
type Stats struct {
	PacketsIn  int
	PacketsOut int
	Tiles      int
	MACs       int64
}
