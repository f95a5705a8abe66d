package models

// Appointment dates travel as YYYY-MM-DD strings end to end; the repository
// casts the date column to text so no timezone conversion ever applies.
type Appointment struct {
	AptDate         string  `json:"apt_date"`
	AptClient       string  `json:"apt_client"`
	AptEmpExecutive *string `json:"apt_emp_executive"`
	AptStatus       string  `json:"apt_status"`
}

// AppointmentDetail is an appointment joined with its executive employee and
// the client's address, as served to the client-facing views.
type AppointmentDetail struct {
	Appointment
	EmpFirstname       *string `json:"emp_firstname"`
	EmpLastname        *string `json:"emp_lastname"`
	ClientName         *string `json:"client_name,omitempty"`
	ClientCity         *string `json:"client_city"`
	ClientStreet       *string `json:"client_street"`
	ClientStreetNumber *string `json:"client_street_number"`
}

// UnassignedAppointment is the staff dispatch view: open appointments without
// an executive, with the representative's phone for callbacks.
type UnassignedAppointment struct {
	AptDate            string  `json:"apt_date"`
	AptClient          string  `json:"apt_client"`
	ClientName         *string `json:"client_name"`
	ClientCity         *string `json:"client_city"`
	ClientStreet       *string `json:"client_street"`
	ClientStreetNumber *string `json:"client_street_number"`
	RepPhone           *string `json:"rep_phone"`
}

// Assignment is one element of the bulk /assignExecutiveEmployee payload.
type Assignment struct {
	AptDate         string  `json:"apt_date"`
	AptClient       string  `json:"apt_client"`
	AptEmpExecutive *string `json:"apt_emp_executive"`
}
