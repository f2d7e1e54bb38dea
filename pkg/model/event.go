package model

import "time"

// Event records one lifecycle transition of a task or of the resource pool.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TaskID    int       `json:"task_id,omitempty"`
	TaskName  string    `json:"task_name,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	RAM       int       `json:"ram"`
	Storage   int       `json:"storage"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Resources is a point-in-time view of the resource pool.
// Amounts are in MiB.
type Resources struct {
	TotalRAM         int `json:"total_ram"`
	TotalStorage     int `json:"total_storage"`
	AvailableRAM     int `json:"available_ram"`
	AvailableStorage int `json:"available_storage"`
	Cores            int `json:"cores"`
}

// UsedRAM returns the RAM currently reserved by admitted tasks.
func (r Resources) UsedRAM() int {
	return r.TotalRAM - r.AvailableRAM
}

// UsedStorage returns the storage currently reserved by admitted tasks.
func (r Resources) UsedStorage() int {
	return r.TotalStorage - r.AvailableStorage
}
