package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/city-search/internal/domain"
)

// Column positions in the geonames extract.
const (
	colID = iota
	colName
	colASCII
	colAltName
	colLat
	colLon
	colFeatClass
	colFeatCode
	colCountry
	colCC2
	colAdmin1
	colAdmin2
	colAdmin3
	colAdmin4
	colPopulation
	colElevation
	colDEM
	colTZ
	colModifiedAt

	numColumns
)

// maxLineBytes bounds a single row; alt_name lists for large cities run to
// several kilobytes.
const maxLineBytes = 1 << 20

// ReadCities parses a tab-separated cities file. The first line is a header
// and is skipped. Rows that cannot be parsed are skipped and counted.
func ReadCities(r io.Reader) ([]domain.City, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !scanner.Scan() {
		return nil, 0, scanner.Err()
	}

	var (
		cities  []domain.City
		skipped int
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		city, err := parseRow(strings.Split(line, "\t"))
		if err != nil {
			skipped++
			continue
		}
		cities = append(cities, city)
	}
	if err := scanner.Err(); err != nil {
		return cities, skipped, fmt.Errorf("read cities: %w", err)
	}
	return cities, skipped, nil
}

func parseRow(fields []string) (domain.City, error) {
	if len(fields) < numColumns {
		return domain.City{}, fmt.Errorf("want %d columns, got %d", numColumns, len(fields))
	}

	id, err := strconv.Atoi(fields[colID])
	if err != nil {
		return domain.City{}, fmt.Errorf("parse id: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[colLat], 64)
	if err != nil {
		return domain.City{}, fmt.Errorf("parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[colLon], 64)
	if err != nil {
		return domain.City{}, fmt.Errorf("parse long: %w", err)
	}
	population, err := strconv.Atoi(fields[colPopulation])
	if err != nil {
		return domain.City{}, fmt.Errorf("parse population: %w", err)
	}

	// Elevation is blank for most rows.
	elevation, err := strconv.Atoi(fields[colElevation])
	if err != nil {
		elevation = -1
	}

	return domain.City{
		ID:         id,
		Name:       fields[colName],
		ASCII:      fields[colASCII],
		AltName:    fields[colAltName],
		Latitude:   lat,
		Longitude:  lon,
		FeatClass:  fields[colFeatClass],
		FeatCode:   fields[colFeatCode],
		Country:    fields[colCountry],
		CC2:        fields[colCC2],
		Admin1:     fields[colAdmin1],
		Admin2:     fields[colAdmin2],
		Admin3:     fields[colAdmin3],
		Admin4:     fields[colAdmin4],
		Population: population,
		Elevation:  elevation,
		DEM:        fields[colDEM],
		TZ:         fields[colTZ],
		ModifiedAt: fields[colModifiedAt],
	}, nil
}
