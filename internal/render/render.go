// Package render turns search bar state and confirmed results into HTML.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/couchcryptid/city-search/internal/domain"
)

// Placeholder is the search input's placeholder text.
const Placeholder = "Search cities"

// CityImagePath is where the result placeholder image is served.
const CityImagePath = "/static/city.svg"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/city.svg
var cityImage []byte

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// View is everything the full page shows.
type View struct {
	Placeholder string
	Query       string
	Suggestions []domain.City
	Loading     bool
	Results     []domain.City
}

// Page writes the whole document. An empty Placeholder uses the default.
func Page(w io.Writer, v View) error {
	if v.Placeholder == "" {
		v.Placeholder = Placeholder
	}
	return execute(w, "page", v)
}

// Suggestions writes only the suggestion list, one child div per city.
func Suggestions(w io.Writer, cities []domain.City) error {
	return execute(w, "suggestions", cities)
}

// Results writes the confirmed result list. An empty list renders an empty <ol>.
func Results(w io.Writer, cities []domain.City) error {
	return execute(w, "results", cities)
}

// CityImage returns the SVG shown next to each result.
func CityImage() []byte {
	return cityImage
}

func execute(w io.Writer, name string, data any) error {
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}
