package models

// Client is a customer account. OTP codes for a client are delivered to the
// phone of its linked representative, not to the client record itself.
type Client struct {
	ClientID           string `json:"client_id"`
	ClientName         string `json:"client_name"`
	ClientCity         string `json:"client_city"`
	ClientStreet       string `json:"client_street"`
	ClientStreetNumber string `json:"client_street_number"`
	ClientRep          string `json:"client_rep"`
}

type Representative struct {
	RepID        string `json:"rep_id"`
	RepFirstname string `json:"rep_firstname"`
	RepLastname  string `json:"rep_lastname"`
	RepPhone     string `json:"rep_phone"`
}

// RepName is the reduced view returned by /repName.
type RepName struct {
	RepFirstname string `json:"rep_firstname"`
	RepLastname  string `json:"rep_lastname"`
}
