// Package domain holds the city search model shared by the suggestions API,
// the suggestion client and the front-end.
//
// # Data Source
//
// Cities come from a geonames extract of Canada and the USA, shipped as a
// tab-separated file with one header line. Each row carries 19 columns:
//
//	id name ascii alt_name lat long feat_class feat_code country cc2
//	admin1 admin2 admin3 admin4 population elevation dem tz modified_at
//
// Name is the localized form ("Québec"); ASCII is its transliteration
// ("Quebec") and is what the search bar shows and copies into the input when
// a suggestion is picked. Elevation is frequently blank in the source and is
// stored as -1 in that case.
//
// See http://www.geonames.org/export/codes.html for feat_class and feat_code.
//
// # Capabilities
//
// The search bar never talks to the network or the browser directly. It is
// handed a [SuggestionSource] and a [LocationSource]; production wiring
// supplies the HTTP client and a request-derived location, tests supply
// fakes.
package domain
