package domain

import "time"

// City is one geonames record. The front-end only reads ID, Name and ASCII;
// the remaining columns travel with the suggestions API response.
type City struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	ASCII      string  `json:"ascii"`
	AltName    string  `json:"alt_name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Country    string  `json:"country"`
	Admin1     string  `json:"admin1"`
	Population int     `json:"population"`
	Elevation  int     `json:"elevation"`
	TZ         string  `json:"tz"`
	ModifiedAt string  `json:"modified_at"`
	FeatClass  string  `json:"feat_class"`
	FeatCode   string  `json:"feat_code"`
	CC2        string  `json:"cc2"`
	DEM        string  `json:"dem"`
	Admin2     string  `json:"admin2"`
	Admin3     string  `json:"admin3"`
	Admin4     string  `json:"admin4"`
}

// Coordinate represents a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within WGS-84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Page is the body returned by the suggestions endpoint. Page and
// TotalPages are only set for paginated requests.
type Page struct {
	Cities     []City `json:"cities"`
	Page       *int   `json:"page,omitempty"`
	TotalPages *int   `json:"totalNumberOfPages,omitempty"`
}

// SearchEvent records one submitted search.
type SearchEvent struct {
	SessionID   string    `json:"session_id"`
	Query       string    `json:"query"`
	CityIDs     []int     `json:"city_ids"`
	Count       int       `json:"count"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewSearchEvent builds a SearchEvent stamped with the package clock.
func NewSearchEvent(sessionID, query string, cities []City) SearchEvent {
	ids := make([]int, len(cities))
	for i, c := range cities {
		ids[i] = c.ID
	}
	return SearchEvent{
		SessionID:   sessionID,
		Query:       query,
		CityIDs:     ids,
		Count:       len(cities),
		SubmittedAt: clock.Now().UTC(),
	}
}
