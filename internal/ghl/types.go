package ghl

// Contact is the upsert payload for a GoHighLevel contact.
type Contact struct {
	FirstName    string            `json:"firstName,omitempty"`
	LastName     string            `json:"lastName,omitempty"`
	Name         string            `json:"name,omitempty"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// AppointmentRequest books a slot on a GoHighLevel calendar.
type AppointmentRequest struct {
	CalendarID       string `json:"calendarId"`
	SelectedSlot     string `json:"selectedSlot"`
	SelectedTimezone string `json:"selectedTimezone"`
	ContactID        string `json:"contactId"`
	Title            string `json:"title,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

type contactRequest struct {
	LocationID string `json:"locationId"`
	Contact
}

type appointmentRequest struct {
	LocationID string `json:"locationId"`
	AppointmentRequest
}

type contactResponse struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

type freeSlotsResponse struct {
	Slots []string `json:"slots"`
}

type noteRequest struct {
	Body string `json:"body"`
}
