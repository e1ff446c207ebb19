package models

import (
	"encoding/json"
	"fmt"
)

// IncidentSummary one entry of the list query (cmd=getIncidents)
type IncidentSummary struct {
	IncidentID     int32    `json:"incidentID"`
	OrgPublishDate Date     `json:"orgPublishDate"`
	ModifiedDate   DateTime `json:"modifiedDate"`
	// Published is passed through verbatim; its meaning upstream is undocumented.
	Published    int32  `json:"published"`
	Country      string `json:"country"`
	IncidentText string `json:"incidentText"`
}

// IncidentDetail response of the detail query (incidentDetails.php)
type IncidentDetail struct {
	PublishDate  Date   `json:"publishDate"`
	AffectedObj  string `json:"affectedObj"`
	AffectedType string `json:"affectedType"`
	DetailsText  string `json:"description_de"`
	Tags         string `json:"tags"`
	Href         string `json:"href"`
	// References is the decoded "reference" field, always a valid JSON document.
	References json.RawMessage `json:"-"`
}

// Incident normalized row of the incidents table; every field is required.
type Incident struct {
	IncidentID     int32           `json:"incident_id"`
	OrgPublishDate Date            `json:"org_publish_date"`
	ModifiedDate   DateTime        `json:"modified_date"`
	Published      int32           `json:"published"`
	PublishDate    Date            `json:"publish_date"`
	AffectedObj    string          `json:"affected_obj"`
	AffectedType   string          `json:"affected_type"`
	Country        string          `json:"country"`
	DetailsText    string          `json:"details_text"`
	Tags           string          `json:"tags"`
	Href           string          `json:"href"`
	References     json.RawMessage `json:"references"`
	IncidentText   string          `json:"incident_text"`
}

// NewIncident assembles the row from its list summary and detail record.
func NewIncident(summary IncidentSummary, detail *IncidentDetail) (*Incident, error) {
	if detail == nil {
		return nil, fmt.Errorf("%w: incident %d has no detail record", ErrParse, summary.IncidentID)
	}
	if !json.Valid(detail.References) {
		return nil, fmt.Errorf("%w: incident %d references are not valid JSON", ErrParse, summary.IncidentID)
	}

	return &Incident{
		IncidentID:     summary.IncidentID,
		OrgPublishDate: summary.OrgPublishDate,
		ModifiedDate:   summary.ModifiedDate,
		Published:      summary.Published,
		PublishDate:    detail.PublishDate,
		AffectedObj:    detail.AffectedObj,
		AffectedType:   detail.AffectedType,
		Country:        summary.Country,
		DetailsText:    detail.DetailsText,
		Tags:           detail.Tags,
		Href:           detail.Href,
		References:     detail.References,
		IncidentText:   summary.IncidentText,
	}, nil
}
