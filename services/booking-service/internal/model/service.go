package model

// Service is a catalog entry. Price is a decimal string (e.g. "800.00") to avoid float rounding.
type Service struct {
	ID              int64
	Name            string
	ImageURL        string
	Price           string
	Currency        string
	DurationMinutes int
	Description     string
}
