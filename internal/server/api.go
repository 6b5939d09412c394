package server

import (
	"encoding/json"
	"net/http"

	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	TaxonomyVersion string `json:"taxonomy_version"`
	UptimeSeconds   int    `json:"uptime_seconds"`
}

// Taxonomy sections selectable with ?section=.
const (
	SectionIntents    = "intents"
	SectionSubjects   = "subjects"
	SectionMeasures   = "measures"
	SectionDimensions = "dimensions"
	SectionTime       = "time"
)

// TaxonomyResponse describes the active vocabulary. Only the requested
// section is filled when one is given.
type TaxonomyResponse struct {
	Version    string          `json:"version"`
	Intents    []IntentInfo    `json:"intents,omitempty"`
	Subjects   []SubjectInfo   `json:"subjects,omitempty"`
	Measures   []MeasureInfo   `json:"measures,omitempty"`
	Dimensions []DimensionInfo `json:"dimensions,omitempty"`
	Time       *TimeInfo       `json:"time,omitempty"`
}

type IntentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SubjectInfo struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Intents  []string `json:"intents"`
	Measures []string `json:"measures"`
}

type MeasureInfo struct {
	Name    string   `json:"name"`
	Subject string   `json:"subject"`
	Unit    string   `json:"unit,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

type DimensionInfo struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type TimeInfo struct {
	Periods       []string `json:"periods"`
	Windows       []string `json:"windows"`
	Granularities []string `json:"granularities"`
}

func describe(v *taxonomy.Version, section string) TaxonomyResponse {
	out := TaxonomyResponse{Version: v.ID()}
	all := section == ""

	if all || section == SectionIntents {
		for _, in := range v.Intents() {
			out.Intents = append(out.Intents, IntentInfo{Name: in.Name, Description: in.Description})
		}
	}
	if all || section == SectionSubjects {
		for _, s := range v.Subjects() {
			out.Subjects = append(out.Subjects, SubjectInfo{Name: s.Name, Aliases: s.Aliases, Intents: s.Intents, Measures: s.Measures})
		}
	}
	if all || section == SectionMeasures {
		for _, m := range v.Measures() {
			out.Measures = append(out.Measures, MeasureInfo{Name: m.Name, Subject: m.Subject, Unit: m.Unit, Aliases: m.Aliases})
		}
	}
	if all || section == SectionDimensions {
		for _, d := range v.Dimensions() {
			out.Dimensions = append(out.Dimensions, DimensionInfo{Name: d.Name, Values: d.Values})
		}
	}
	if all || section == SectionTime {
		tt := v.TimeTokens()
		out.Time = &TimeInfo{Periods: tt.Periods, Windows: tt.Windows, Granularities: tt.Granularities}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Code: status, Message: msg})
}
