package model

type RoomType string

const (
	RoomTypeGeneral     RoomType = "general"
	RoomTypePrivate     RoomType = "private"
	RoomTypeSemiPrivate RoomType = "semi_private"
	RoomTypeICU         RoomType = "icu"
	RoomTypeEmergency   RoomType = "emergency"
	RoomTypeOperation   RoomType = "operation"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeGeneral, RoomTypePrivate, RoomTypeSemiPrivate,
		RoomTypeICU, RoomTypeEmergency, RoomTypeOperation:
		return true
	}
	return false
}

type Room struct {
	Base
	Name      string   `json:"name" db:"name"`
	Type      RoomType `json:"room_type" db:"room_type"`
	Floor     int      `json:"floor" db:"floor"`
	DailyRate float64  `json:"daily_rate" db:"daily_rate"`
}

// RoomOccupancy counts a room's beds. Beds under maintenance are part of
// capacity but neither occupied nor available.
type RoomOccupancy struct {
	Room
	Capacity  int `json:"capacity" db:"capacity"`
	Occupied  int `json:"occupied" db:"occupied"`
	Available int `json:"available" db:"available"`
}

type CreateRoomRequest struct {
	Name      string   `json:"name" binding:"required,max=64"`
	Type      RoomType `json:"room_type" binding:"omitempty,roomtype"`
	Floor     int      `json:"floor"`
	DailyRate float64  `json:"daily_rate" binding:"gte=0"`
}
