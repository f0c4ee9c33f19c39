package domain

import (
	"strings"
)

// ImportRow is one flat record of a bulk-import batch: one person plus the
// unit they already occupy. Dependent slots are positional (1..6) to match
// the upload template.
type ImportRow struct {
	SvcNo         string `json:"svcNo"`
	FullName      string `json:"fullName"`
	Category      string `json:"category"`
	Rank          string `json:"rank"`
	MaritalStatus string `json:"maritalStatus"`
	CurrentUnit   string `json:"currentUnit"`
	Appointment   string `json:"appointment"`

	Dependent1Name   string `json:"dependent1Name"`
	Dependent1Gender string `json:"dependent1Gender"`
	Dependent1Age    int    `json:"dependent1Age"`
	Dependent2Name   string `json:"dependent2Name"`
	Dependent2Gender string `json:"dependent2Gender"`
	Dependent2Age    int    `json:"dependent2Age"`
	Dependent3Name   string `json:"dependent3Name"`
	Dependent3Gender string `json:"dependent3Gender"`
	Dependent3Age    int    `json:"dependent3Age"`
	Dependent4Name   string `json:"dependent4Name"`
	Dependent4Gender string `json:"dependent4Gender"`
	Dependent4Age    int    `json:"dependent4Age"`
	Dependent5Name   string `json:"dependent5Name"`
	Dependent5Gender string `json:"dependent5Gender"`
	Dependent5Age    int    `json:"dependent5Age"`
	Dependent6Name   string `json:"dependent6Name"`
	Dependent6Gender string `json:"dependent6Gender"`
	Dependent6Age    int    `json:"dependent6Age"`

	// Unit-matching columns.
	QuarterName       string `json:"quarterName"`
	Location          string `json:"location"`
	BlockName         string `json:"blockName"`
	FlatHouseRoomName string `json:"flatHouseRoomName"`
	AccommodationType string `json:"accommodationType"`
	OccupancyType     string `json:"occupancyType"`
	DateAllocated     string `json:"dateAllocated"` // YYYY-MM-DD, optional
}

// DependentList expands the positional slots into an ordered list, skipping
// empty names.
func (r *ImportRow) DependentList() []Dependent {
	slots := []struct {
		name, gender string
		age          int
	}{
		{r.Dependent1Name, r.Dependent1Gender, r.Dependent1Age},
		{r.Dependent2Name, r.Dependent2Gender, r.Dependent2Age},
		{r.Dependent3Name, r.Dependent3Gender, r.Dependent3Age},
		{r.Dependent4Name, r.Dependent4Gender, r.Dependent4Age},
		{r.Dependent5Name, r.Dependent5Gender, r.Dependent5Age},
		{r.Dependent6Name, r.Dependent6Gender, r.Dependent6Age},
	}
	deps := []Dependent{}
	for i, s := range slots {
		if strings.TrimSpace(s.name) == "" {
			continue
		}
		deps = append(deps, Dependent{
			Name:   strings.TrimSpace(s.name),
			Gender: s.gender,
			Age:    s.age,
			Slot:   i + 1,
		})
	}
	return deps
}

// officerRankKeywords marks ranks that imply the Officer category when an
// imported row carries no usable category of its own.
var officerRankKeywords = []string{
	"lt", "capt", "maj", "col", "gen", "brig",
	"fg offr", "plt offr", "sqn ldr", "wg cdr", "gp capt", "air",
}

// InferCategory resolves Officer vs NCO from an explicit category value,
// falling back to rank keywords.
func InferCategory(category, rank string) string {
	switch strings.ToUpper(strings.TrimSpace(category)) {
	case "OFFICER":
		return CategoryOfficer
	case "NCO":
		return CategoryNCO
	}
	lower := strings.ToLower(rank)
	for _, kw := range officerRankKeywords {
		if strings.Contains(lower, kw) {
			return CategoryOfficer
		}
	}
	return CategoryNCO
}

// ImportResult summarizes one reconciled batch.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}
