// Package service contains business logic for the plat-assets platform.
package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// AssetType is the kind of infrastructure an asset represents.
type AssetType string

const (
	Pump           AssetType = "Pump"
	Pipeline       AssetType = "Pipeline"
	Valve          AssetType = "Valve"
	TreatmentPlant AssetType = "TreatmentPlant"
)

// AssetTypes lists every asset type in display order.
var AssetTypes = []AssetType{Pump, Pipeline, Valve, TreatmentPlant}

// DisplayName returns the human readable name, e.g. "Treatment Plant".
func (t AssetType) DisplayName() string {
	if t == TreatmentPlant {
		return "Treatment Plant"
	}
	return string(t)
}

// ParseAssetType accepts the canonical value or its display name.
func ParseAssetType(s string) (AssetType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range AssetTypes {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, t.DisplayName()) {
			return t, true
		}
	}
	return "", false
}

// Condition is the assessed state of an asset.
type Condition string

const (
	Excellent Condition = "Excellent"
	Good      Condition = "Good"
	Fair      Condition = "Fair"
	Poor      Condition = "Poor"
)

// Conditions lists every condition from best to worst.
var Conditions = []Condition{Excellent, Good, Fair, Poor}

// ParseCondition matches a condition case-insensitively.
func ParseCondition(s string) (Condition, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Conditions {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// DateLayout is the calendar date format used for installation dates.
const DateLayout = "2006-01-02"

// Asset is a registered piece of physical infrastructure.
// Huma reads the tags for OpenAPI and request validation.
type Asset struct {
	ID               string    `json:"id" required:"true" minLength:"1" maxLength:"64" doc:"Unique asset identifier" example:"a1"`
	Type             AssetType `json:"type" required:"true" enum:"Pump,Pipeline,Valve,TreatmentPlant" doc:"Asset type" example:"Pump"`
	Latitude         float64   `json:"latitude" minimum:"-90" maximum:"90" doc:"WGS84 latitude in degrees" example:"28.690229"`
	Longitude        float64   `json:"longitude" minimum:"-180" maximum:"180" doc:"WGS84 longitude in degrees" example:"77.2881183"`
	InstallationDate string    `json:"installationDate" required:"true" format:"date" doc:"Installation date (YYYY-MM-DD)" example:"2021-04-12"`
	Manufacturer     string    `json:"manufacturer" required:"true" minLength:"1" doc:"Manufacturer" example:"Grundfos"`
	Model            string    `json:"model" required:"true" minLength:"1" doc:"Model" example:"CR 45"`
	Capacity         string    `json:"capacity" required:"true" minLength:"1" doc:"Capacity (free text)" example:"45 m3/h"`
	Condition        Condition `json:"condition" required:"true" enum:"Excellent,Good,Fair,Poor" doc:"Assessed condition" example:"Good"`
}

// Point returns the asset location as an orb point (longitude, latitude).
func (a Asset) Point() orb.Point {
	return orb.Point{a.Longitude, a.Latitude}
}

// ValidCoordinates reports whether lat/lon are finite WGS84 degrees.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Validate checks every field and reports all problems at once.
func (a Asset) Validate() error {
	var verr ValidationError
	if strings.TrimSpace(a.ID) == "" {
		verr.Add("id", "is required")
	}
	if _, ok := ParseAssetType(string(a.Type)); !ok {
		verr.Add("type", fmt.Sprintf("unknown asset type %q", a.Type))
	}
	if math.IsNaN(a.Latitude) || math.IsInf(a.Latitude, 0) || a.Latitude < -90 || a.Latitude > 90 {
		verr.Add("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(a.Longitude) || math.IsInf(a.Longitude, 0) || a.Longitude < -180 || a.Longitude > 180 {
		verr.Add("longitude", "must be between -180 and 180")
	}
	if _, err := time.Parse(DateLayout, a.InstallationDate); err != nil {
		verr.Add("installationDate", "must be a date (YYYY-MM-DD)")
	}
	if strings.TrimSpace(a.Manufacturer) == "" {
		verr.Add("manufacturer", "is required")
	}
	if strings.TrimSpace(a.Model) == "" {
		verr.Add("model", "is required")
	}
	if strings.TrimSpace(a.Capacity) == "" {
		verr.Add("capacity", "is required")
	}
	if _, ok := ParseCondition(string(a.Condition)); !ok {
		verr.Add("condition", fmt.Sprintf("unknown condition %q", a.Condition))
	}
	return verr.OrNil()
}

// Normalize maps display-name aliases onto canonical enum values.
func (a Asset) Normalize() Asset {
	if t, ok := ParseAssetType(string(a.Type)); ok {
		a.Type = t
	}
	if c, ok := ParseCondition(string(a.Condition)); ok {
		a.Condition = c
	}
	a.ID = strings.TrimSpace(a.ID)
	return a
}

// Consumable is an inventory item tracked per panchayat.
type Consumable struct {
	ID                   string `json:"id,omitempty" doc:"Consumable identifier (generated when empty)"`
	ItemName             string `json:"itemName" required:"true" minLength:"1" doc:"Item name" example:"Chlorine tablets"`
	CurrentQuantity      int    `json:"currentQuantity" minimum:"0" doc:"Quantity on hand" example:"120"`
	MinimumThreshold     int    `json:"minimumThreshold" minimum:"0" doc:"Reorder threshold" example:"50"`
	ReplenishmentDueDate string `json:"replenishmentDueDate" required:"true" format:"date" doc:"Replenishment due date (YYYY-MM-DD)" example:"2024-09-01"`
	PanchayatID          string `json:"panchayatId" required:"true" minLength:"1" doc:"Owning panchayat" example:"p-17"`
	PanchayatName        string `json:"panchayatName,omitempty" readOnly:"true" doc:"Resolved panchayat name"`
}

// BelowThreshold reports whether stock needs replenishing.
func (c Consumable) BelowThreshold() bool {
	return c.CurrentQuantity < c.MinimumThreshold
}

// Panchayat is a village council that owns consumables.
type Panchayat struct {
	ID   string `json:"id" required:"true" minLength:"1" doc:"Panchayat identifier" example:"p-17"`
	Name string `json:"name" required:"true" minLength:"1" doc:"Panchayat name" example:"Shahdara"`
}

// AssetStats summarises the registry.
type AssetStats struct {
	Total       int            `json:"total" doc:"Number of assets"`
	ByType      map[string]int `json:"byType" doc:"Asset count per type"`
	ByCondition map[string]int `json:"byCondition" doc:"Asset count per condition"`
	Bounds      []float64      `json:"bounds,omitempty" doc:"Bounding box [minLon, minLat, maxLon, maxLat]"`
}
