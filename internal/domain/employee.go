package domain

// Employee is an operator identity resolved from an RFID card token.
// The daemon reads it, never mutates it.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Position   string `json:"position"`
	CardToken  string `json:"rfid_card_id"`
	Authorized bool   `json:"authorized"`
}
