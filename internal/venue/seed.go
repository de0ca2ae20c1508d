package venue

import "github.com/wayfinder/wayfinder/internal/location"

// SeedVenues is the built-in Johannesburg catalogue served when no database is configured.
func SeedVenues() []Venue {
	return []Venue{
		{
			ID:                  "sandton-city",
			Name:                "Sandton City",
			Address:             "83 Rivonia Rd, Sandhurst, Sandton",
			Location:            location.Coordinate{Lat: -26.1076, Lon: 28.0567},
			Category:            CategoryMall,
			HasIndoorNavigation: true,
			Amenities:           []string{"parking", "wifi", "food_court", "restrooms"},
		},
		{
			ID:                  "rosebank-mall",
			Name:                "Rosebank Mall",
			Address:             "50 Bath Ave, Rosebank, Johannesburg",
			Location:            location.Coordinate{Lat: -26.1452, Lon: 28.0436},
			Category:            CategoryMall,
			HasIndoorNavigation: true,
			Amenities:           []string{"parking", "wifi", "cinema"},
		},
		{
			ID:                  "braamfontein-market",
			Name:                "Neighbourgoods Market",
			Address:             "73 Juta St, Braamfontein, Johannesburg",
			Location:            location.Coordinate{Lat: -26.1906, Lon: 28.0369},
			Category:            CategoryRestaurant,
			HasIndoorNavigation: false,
			Amenities:           []string{"food_court"},
		},
		{
			ID:                  "carlton-centre",
			Name:                "Carlton Centre",
			Address:             "150 Commissioner St, Johannesburg",
			Location:            location.Coordinate{Lat: -26.2056, Lon: 28.0470},
			Category:            CategoryStore,
			HasIndoorNavigation: true,
			Amenities:           []string{"parking", "observation_deck"},
		},
		{
			ID:                  "gold-reef-city",
			Name:                "Gold Reef City",
			Address:             "Northern Pkwy, Ormonde, Johannesburg",
			Location:            location.Coordinate{Lat: -26.2355, Lon: 28.0131},
			Category:            CategoryEntertainment,
			HasIndoorNavigation: false,
			Amenities:           []string{"parking", "restrooms"},
		},
		{
			ID:                  "menlyn-park",
			Name:                "Menlyn Park",
			Address:             "Atterbury Rd, Menlo Park, Pretoria",
			Location:            location.Coordinate{Lat: -25.7830, Lon: 28.2755},
			Category:            CategoryMall,
			HasIndoorNavigation: true,
			Amenities:           []string{"parking", "wifi", "cinema", "food_court"},
		},
	}
}
