package backendsim

import (
	"encoding/json"
	"fmt"
	"os"
)

type Availability struct {
	DayOfWeek int    `json:"dayOfWeek"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type Field struct {
	ID           string         `json:"_id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	ComplexID    string         `json:"complexId"`
	Availability []Availability `json:"availability"`
}

type Complex struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Country string   `json:"country"`
	City    string   `json:"city"`
	Address string   `json:"address"`
	Stars   *float64 `json:"stars"`
}

type Reservation struct {
	ID        string  `json:"_id"`
	FieldID   string  `json:"fieldId"`
	UserID    string  `json:"userId"`
	ComplexID string  `json:"complexId"`
	StartTime string  `json:"startTime"`
	Duration  string  `json:"duration"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt"`
}

// SeedUser carries a plain-text password; it is hashed on load.
type SeedUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
	City     string `json:"city"`
	Country  string `json:"country"`
	DNI      string `json:"dni"`
}

type Seed struct {
	Complexes    []Complex     `json:"complexes"`
	Fields       []Field       `json:"fields"`
	Users        []SeedUser    `json:"users"`
	Reservations []Reservation `json:"reservations"`
}

// LoadSeed reads a Seed from a JSON file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var s Seed
	if err := json.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

func everyDay(from, to string) []Availability {
	out := make([]Availability, 0, 7)
	for d := 1; d <= 7; d++ {
		out = append(out, Availability{DayOfWeek: d, From: from, To: to})
	}
	return out
}

// DefaultSeed is a small complex with two fields and two users, one of them
// without a national id.
func DefaultSeed() Seed {
	stars := 4.5
	return Seed{
		Complexes: []Complex{
			{ID: "cx-norte", Name: "Complejo Norte", Country: "Argentina", City: "Córdoba", Address: "Av. Colón 1200", Stars: &stars},
		},
		Fields: []Field{
			{ID: "fd-futbol-5", Name: "Fútbol 5 - Cancha 1", Type: "futbol", ComplexID: "cx-norte", Availability: everyDay("9:00", "23:00")},
			{ID: "fd-padel-1", Name: "Pádel 1", Type: "padel", ComplexID: "cx-norte", Availability: []Availability{
				{DayOfWeek: 2, From: "8:00", To: "12:00"},
				{DayOfWeek: 4, From: "8:00", To: "12:00"},
				{DayOfWeek: 6, From: "16:00", To: "22:00"},
			}},
		},
		Users: []SeedUser{
			{ID: "us-ana", Name: "Ana Pérez", Email: "ana@example.com", Password: "secret", Role: "user", City: "Córdoba", Country: "Argentina", DNI: "30111222"},
			{ID: "us-leo", Name: "Leo Díaz", Email: "leo@example.com", Password: "secret", Role: "user", City: "Córdoba", Country: "Argentina"},
		},
	}
}
