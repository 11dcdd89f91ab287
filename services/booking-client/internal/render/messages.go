package render

import "golang.org/x/text/language"

// Messages are the user-facing strings of the terminal client.
type Messages struct {
	Loading          string
	NoWindow         string
	Degraded         string
	Free             string
	Reserved         string
	Past             string
	Unavailable      string
	LoginRequired    string
	ProfileRequired  string
	ConfirmTitle     string
	ConfirmPrice     string
	CancellationNote string
	ConfirmQuestion  string
	Success          string
	Failure          string
	SlotTaken        string
	Canceled         string
	NoReservations   string
	NoComplexes      string

	UnknownReservation string
	Status           map[string]string
}

var spanish = Messages{
	Loading:          "Cargando horarios...",
	NoWindow:         "Sin horarios para este día",
	Degraded:         "No se pudieron cargar las reservas; los horarios pueden no estar al día",
	Free:             "libre",
	Reserved:         "reservado",
	Past:             "pasado",
	Unavailable:      "no disponible",
	LoginRequired:    "Iniciá sesión para reservar un horario",
	ProfileRequired:  "Completá tu perfil (DNI) para poder reservar",
	ConfirmTitle:     "Confirmar reserva",
	ConfirmPrice:     "Precio",
	CancellationNote: "Podés cancelar la reserva hasta %d horas antes del inicio.",
	ConfirmQuestion:  "¿Confirmar? [s/N] ",
	Success:          "Reserva confirmada: %s %s",
	Failure:          "No se pudo realizar la reserva: %v",
	SlotTaken:        "Ese horario ya fue reservado",
	Canceled:         "Reserva cancelada",
	NoReservations:   "No tenés reservas",
	NoComplexes:      "No hay complejos",

	UnknownReservation: "No existe la reserva %s",
	Status: map[string]string{
		"pending":   "pendiente",
		"confirmed": "confirmada",
		"canceled":  "cancelada",
	},
}

var english = Messages{
	Loading:          "Loading slots...",
	NoWindow:         "No slots on this day",
	Degraded:         "Reservations could not be loaded; slots may be out of date",
	Free:             "free",
	Reserved:         "reserved",
	Past:             "past",
	Unavailable:      "unavailable",
	LoginRequired:    "Log in to book a slot",
	ProfileRequired:  "Complete your profile (national id) to book",
	ConfirmTitle:     "Confirm reservation",
	ConfirmPrice:     "Price",
	CancellationNote: "You can cancel up to %d hours before the start.",
	ConfirmQuestion:  "Confirm? [y/N] ",
	Success:          "Reservation confirmed: %s %s",
	Failure:          "Could not make the reservation: %v",
	SlotTaken:        "That slot was just booked",
	Canceled:         "Reservation canceled",
	NoReservations:   "You have no reservations",
	NoComplexes:      "No complexes",

	UnknownReservation: "No reservation %s",
	Status: map[string]string{
		"pending":   "pending",
		"confirmed": "confirmed",
		"canceled":  "canceled",
	},
}

// MessagesFor returns the message table for tag's base language.
func MessagesFor(tag language.Tag) Messages {
	if base, _ := tag.Base(); base.String() == "en" {
		return english
	}
	return spanish
}
