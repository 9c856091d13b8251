// Package geo holds static country and continent reference data.
package geo

import "strings"

// Continent codes
const (
	Africa       = "AF"
	Antarctica   = "AN"
	Asia         = "AS"
	Europe       = "EU"
	NorthAmerica = "NA"
	Oceania      = "OC"
	SouthAmerica = "SA"
)

var continentNames = map[string]string{
	Africa:       "Africa",
	Antarctica:   "Antarctica",
	Asia:         "Asia",
	Europe:       "Europe",
	NorthAmerica: "North America",
	Oceania:      "Oceania",
	SouthAmerica: "South America",
}

var countryContinent = map[string]string{}

func init() {
	for continent, countries := range map[string]string{
		Africa: "AO BF BI BJ BW CD CF CG CI CM CV DJ DZ EG EH ER ET GA GH GM GN GQ GW KE KM LR LS LY MA MG ML MR MU MW MZ NA NE NG RE RW SC SD SH SL SN SO SS ST SZ TD TG TN TZ UG YT ZA ZM ZW",
		Antarctica:   "AQ BV GS HM TF",
		Asia:         "AE AF AM AZ BD BH BN BT CC CN CX GE HK ID IL IN IO IQ IR JO JP KG KH KP KR KW KZ LA LB LK MM MN MO MV MY NP OM PH PK PS QA SA SG SY TH TJ TL TM TR TW UZ VN YE",
		Europe:       "AD AL AT AX BA BE BG BY CH CY CZ DE DK EE ES FI FO FR GB GG GI GR HR HU IE IM IS IT JE LI LT LU LV MC MD ME MK MT NL NO PL PT RO RS RU SE SI SJ SK SM UA VA XK",
		NorthAmerica: "AG AI AW BB BL BM BQ BS BZ CA CR CU CW DM DO GD GL GP GT HN HT JM KN KY LC MF MQ MS MX NI PA PM PR SV SX TC TT US VC VG VI",
		Oceania:      "AS AU CK FJ FM GU KI MH MP NC NF NR NU NZ PF PG PN PW SB TK TO TV UM VU WF WS",
		SouthAmerica: "AR BO BR CL CO EC FK GF GY PE PY SR UY VE",
	} {
		for _, cc := range strings.Fields(countries) {
			countryContinent[cc] = continent
		}
	}
}

// ContinentOf returns the continent code for an ISO 3166-1 alpha-2
// country code, or "" if unknown
func ContinentOf(countryCode string) string {
	return countryContinent[strings.ToUpper(countryCode)]
}

// ContinentName returns the English name for a continent code
func ContinentName(code string) string {
	return continentNames[strings.ToUpper(code)]
}

// IsContinent reports whether code is a known continent code
func IsContinent(code string) bool {
	_, ok := continentNames[strings.ToUpper(code)]
	return ok
}
