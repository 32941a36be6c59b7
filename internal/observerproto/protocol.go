// Package observerproto holds the renderer feed wire types.
package observerproto

// Version is the feed protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWindow    = "WINDOW"
	TypeTick      = "TICK"
	TypeInput     = "INPUT"

	EncodingRLE = "RLE"
)

// Client -> Server. First message on the feed connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// Client -> Server. Horizontal direction (-1, 0, 1) and a one-shot jump.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Dir             int8   `json:"dir"`
	Jump            bool   `json:"jump"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
	BlockCodes      []uint16    `json:"block_codes"`
}

type WorldParams struct {
	TickRateHz     int     `json:"tick_rate_hz"`
	ChunkWidth     int     `json:"chunk_width"`
	ChunkHeight    int     `json:"chunk_height"`
	MinChunk       int     `json:"min_chunk"`
	MaxChunk       int     `json:"max_chunk"`
	BlockPixels    float32 `json:"block_pixels"`
	SolidThreshold uint16  `json:"solid_threshold"`
	Seed           int64   `json:"seed"`
}

// Server -> Client. Sent after every window transition and once on subscribe.
type WindowMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Seq             uint64       `json:"seq"`
	Lo              int          `json:"lo"`
	Hi              int          `json:"hi"`
	Chunks          []ChunkState `json:"chunks"`
	Player          PlayerState  `json:"player"`
}

type ChunkState struct {
	Index      int    `json:"index"`
	Solid      int    `json:"solid"`
	Decorative int    `json:"decorative"`
	Encoding   string `json:"encoding"`
	Data       string `json:"data"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Player          PlayerState `json:"player"`
}

type PlayerState struct {
	Pos      [2]float32 `json:"pos"`
	Vel      [2]float32 `json:"vel"`
	Chunk    int        `json:"chunk"`
	Facing   string     `json:"facing"`
	Grounded bool       `json:"grounded"`
}
