package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to move the observer or change what it watches.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// DroneID limits debug traffic to one drone. Empty watches all drones.
	DroneID      string     `json:"drone_id,omitempty"`
	Pos          [3]float64 `json:"pos"`
	Capabilities []string   `json:"capabilities,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	WorldID         string   `json:"world_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	BlockPalette    []string `json:"block_palette"`
	Drones          []string `json:"drones"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Drones          []DroneState `json:"drones"`
}

type DroneState struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Pos     [3]float64 `json:"pos"`
	Step    int        `json:"step"`
	Kind    string     `json:"kind,omitempty"`
	State   string     `json:"state"`
	Actions int        `json:"actions"`
}

// Server -> Client. Positions a drone just inspected.
type IndicatorMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	DroneID         string   `json:"drone_id"`
	Positions       [][3]int `json:"positions"`
	Color           string   `json:"color"`
}

// Server -> Client. One drone debug entry.
type DebugMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	DroneID         string  `json:"drone_id"`
	Key             string  `json:"key"`
	Pos             *[3]int `json:"pos,omitempty"`
}

// Server -> Client. A position a drone gave up on.
type WireframeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	DroneID         string `json:"drone_id"`
	Pos             [3]int `json:"pos"`
}
