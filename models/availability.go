package models

// Availability is the committed inventory snapshot for one raffle.
type Availability struct {
	RaffleID         string `json:"raffle_id"`
	Available        int    `json:"available"`
	Reserved         int    `json:"reserved"`
	Sold             int    `json:"sold"`
	AvailableNumbers []int  `json:"available_numbers"`
}

type DrawResult struct {
	RaffleID     string `json:"raffle_id"`
	WinnerNumber int    `json:"winner_number"`
	OrderID      string `json:"order_id"`
	OrderCode    string `json:"order_code"`
	ContactID    string `json:"contact_id"`
}
