package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy", "idle"
	Connections ConnectionStats `json:"connections"` // Client connection stats
	Rooms       RoomStats       `json:"rooms"`       // Room stats
	Clients     []ClientInfo    `json:"clients"`     // List of connected clients
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"` // Total clients currently connected
	UniqueUsers    int `json:"uniqueUsers"`    // Distinct users across connections
	Admins         int `json:"admins"`         // Connections subscribed to the admin room
}

// RoomStats holds room statistics
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo contains information about a single room
type RoomInfo struct {
	Name         string `json:"name"`
	TotalClients int    `json:"totalClients"`
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID string   `json:"clientId"`
	UserID   string   `json:"userId"`
	Rooms    []string `json:"rooms"`
}
