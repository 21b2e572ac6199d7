package model

type Slot struct {
	Date            Date  `json:"date" bson:"date"`
	Start           Clock `json:"start_time" bson:"start_time"`
	End             Clock `json:"end_time" bson:"end_time"`
	DurationMinutes int   `json:"duration_minutes" bson:"duration_minutes"`
}

func NewSlot(date Date, start, end Clock) Slot {
	return Slot{Date: date, Start: start, End: end, DurationMinutes: int(end - start)}
}

func (s Slot) Window() Window {
	return Window{Start: s.Start, End: s.End}
}

func (s Slot) String() string {
	return s.Date.String() + " " + s.Window().String()
}
