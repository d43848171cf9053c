package hub

import (
	"Wayfarer/internal/model"
	"sort"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	clients := ms.snapshot()

	connectionStats := ms.getConnectionStats(clients)
	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Rooms:       ms.getRoomStats(),
		Clients:     ms.getClientList(clients),
	}
}

func (ms *MonitorService) snapshot() []*Client {
	ms.hub.clientsMu.RLock()
	defer ms.hub.clientsMu.RUnlock()

	clients := make([]*Client, 0, len(ms.hub.clients))
	for _, c := range ms.hub.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}

func (ms *MonitorService) getConnectionStats(clients []*Client) model.ConnectionStats {
	users := make(map[string]struct{}, len(clients))
	stats := model.ConnectionStats{TotalConnected: len(clients)}

	for _, c := range clients {
		users[c.UserID()] = struct{}{}
		if c.IsAdmin() {
			stats.Admins++
		}
	}
	stats.UniqueUsers = len(users)
	return stats
}

// getRoomStats returns room statistics
func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for name, room := range bucket.rooms {
			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				Name:         name,
				TotalClients: len(room),
			})
			stats.TotalRooms++
		}
		bucket.RUnlock()
	}

	sort.Slice(stats.RoomDetails, func(i, j int) bool {
		return stats.RoomDetails[i].Name < stats.RoomDetails[j].Name
	})
	return stats
}

func (ms *MonitorService) getClientList(clients []*Client) []model.ClientInfo {
	list := make([]model.ClientInfo, 0, len(clients))
	for _, c := range clients {
		list = append(list, model.ClientInfo{
			ClientID: c.ID,
			UserID:   c.UserID(),
			Rooms:    c.Rooms(),
		})
	}
	return list
}
