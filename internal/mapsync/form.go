package mapsync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/plat-assets/internal/service"
)

// Form field names. They match the Asset JSON names.
const (
	FieldID               = "id"
	FieldType             = "type"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldInstallationDate = "installationDate"
	FieldManufacturer     = "manufacturer"
	FieldModel            = "model"
	FieldCapacity         = "capacity"
	FieldCondition        = "condition"
)

// Option is one choice of a select field.
type Option struct {
	Value string
	Label string
}

// FormField describes how one asset attribute is edited.
type FormField struct {
	Name    string
	Label   string
	Input   string // text, number, date, select
	Options []Option
}

// FormFields is the asset form, in display order.
var FormFields = []FormField{
	{Name: FieldID, Label: "Asset ID", Input: "text"},
	{Name: FieldType, Label: "Asset Type", Input: "select", Options: typeOptions()},
	{Name: FieldLatitude, Label: "Latitude", Input: "number"},
	{Name: FieldLongitude, Label: "Longitude", Input: "number"},
	{Name: FieldInstallationDate, Label: "Installation Date", Input: "date"},
	{Name: FieldManufacturer, Label: "Manufacturer", Input: "text"},
	{Name: FieldModel, Label: "Model", Input: "text"},
	{Name: FieldCapacity, Label: "Capacity", Input: "text"},
	{Name: FieldCondition, Label: "Condition", Input: "select", Options: conditionOptions()},
}

func typeOptions() []Option {
	opts := make([]Option, len(service.AssetTypes))
	for i, t := range service.AssetTypes {
		opts[i] = Option{Value: string(t), Label: t.DisplayName()}
	}
	return opts
}

func conditionOptions() []Option {
	opts := make([]Option, len(service.Conditions))
	for i, c := range service.Conditions {
		opts[i] = Option{Value: string(c), Label: string(c)}
	}
	return opts
}

// Draft is the form buffer: each field exactly as typed, so an unparseable
// value survives a failed commit.
type Draft struct {
	ID               string
	Type             string
	Latitude         string
	Longitude        string
	InstallationDate string
	Manufacturer     string
	Model            string
	Capacity         string
	Condition        string
}

// DraftFromAsset copies a stored asset into a draft.
func DraftFromAsset(a service.Asset) Draft {
	return Draft{
		ID:               a.ID,
		Type:             string(a.Type),
		Latitude:         strconv.FormatFloat(a.Latitude, 'f', -1, 64),
		Longitude:        strconv.FormatFloat(a.Longitude, 'f', -1, 64),
		InstallationDate: a.InstallationDate,
		Manufacturer:     a.Manufacturer,
		Model:            a.Model,
		Capacity:         a.Capacity,
		Condition:        string(a.Condition),
	}
}

func (d *Draft) field(name string) (*string, bool) {
	switch name {
	case FieldID:
		return &d.ID, true
	case FieldType:
		return &d.Type, true
	case FieldLatitude:
		return &d.Latitude, true
	case FieldLongitude:
		return &d.Longitude, true
	case FieldInstallationDate:
		return &d.InstallationDate, true
	case FieldManufacturer:
		return &d.Manufacturer, true
	case FieldModel:
		return &d.Model, true
	case FieldCapacity:
		return &d.Capacity, true
	case FieldCondition:
		return &d.Condition, true
	}
	return nil, false
}

// Set stores value in the named field.
func (d *Draft) Set(name, value string) error {
	p, ok := d.field(name)
	if !ok {
		return fmt.Errorf("unknown form field %q", name)
	}
	*p = value
	return nil
}

// Get returns the named field, or "" for unknown names.
func (d Draft) Get(name string) string {
	if p, ok := d.field(name); ok {
		return *p
	}
	return ""
}

// Values returns every field keyed by name.
func (d Draft) Values() map[string]string {
	m := make(map[string]string, len(FormFields))
	for _, f := range FormFields {
		m[f.Name] = d.Get(f.Name)
	}
	return m
}

// ParseDraft validates the draft and builds a complete Asset from it.
// Every problem is reported in one *service.ValidationError.
func ParseDraft(d Draft) (service.Asset, error) {
	var verr service.ValidationError
	var a service.Asset

	a.ID = strings.TrimSpace(d.ID)
	if a.ID == "" {
		verr.Add(FieldID, "is required")
	}

	if t, ok := service.ParseAssetType(d.Type); ok {
		a.Type = t
	} else if strings.TrimSpace(d.Type) == "" {
		verr.Add(FieldType, "is required")
	} else {
		verr.Add(FieldType, fmt.Sprintf("unknown asset type %q", d.Type))
	}

	a.Latitude = parseCoordinate(&verr, FieldLatitude, d.Latitude, 90)
	a.Longitude = parseCoordinate(&verr, FieldLongitude, d.Longitude, 180)

	date := strings.TrimSpace(d.InstallationDate)
	if date == "" {
		verr.Add(FieldInstallationDate, "is required")
	} else if _, err := time.Parse(service.DateLayout, date); err != nil {
		verr.Add(FieldInstallationDate, "must be a date (YYYY-MM-DD)")
	}
	a.InstallationDate = date

	a.Manufacturer = required(&verr, FieldManufacturer, d.Manufacturer)
	a.Model = required(&verr, FieldModel, d.Model)
	a.Capacity = required(&verr, FieldCapacity, d.Capacity)

	if c, ok := service.ParseCondition(d.Condition); ok {
		a.Condition = c
	} else if strings.TrimSpace(d.Condition) == "" {
		verr.Add(FieldCondition, "is required")
	} else {
		verr.Add(FieldCondition, fmt.Sprintf("unknown condition %q", d.Condition))
	}

	if err := verr.OrNil(); err != nil {
		return service.Asset{}, err
	}
	return a, nil
}

func required(verr *service.ValidationError, field, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		verr.Add(field, "is required")
	}
	return v
}

func parseCoordinate(verr *service.ValidationError, field, raw string, limit float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		verr.Add(field, "is required")
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		verr.Add(field, "must be a number")
		return 0
	}
	if math.IsNaN(v) || v < -limit || v > limit {
		verr.Add(field, fmt.Sprintf("must be between %g and %g", -limit, limit))
		return 0
	}
	return v
}
