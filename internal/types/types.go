// README: Shared scalar and value types used across modules.
package types

// ID identifies a ride, an order or a shopping list. All three kinds
// draw their ids from one shared sequence, so an ID is unique across
// kinds and the numeric order reflects creation order.
type ID int64

// UserID is the external user identity. Opaque to the store.
type UserID int64

// GeoPosition locates a ride offer. Candidate matching operates on the
// postal code; Lat/Lng are optional enrichment from the geocoder.
type GeoPosition struct {
	Plz uint32  `json:"plz"`
	Lat float64 `json:"lat,omitempty"`
	Lng float64 `json:"lng,omitempty"`
}

// Address is a delivery address.
type Address struct {
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
	City        string `json:"city"`
	Plz         uint32 `json:"plz"`
	Country     string `json:"country"`
}
