package mapsync

import (
	"testing"

	"github.com/joeblew999/plat-assets/internal/service"
)

func validDraft() Draft {
	return DraftFromAsset(pump("a1", 28.69))
}

func TestParseDraftBuildsFullAsset(t *testing.T) {
	d := validDraft()
	d.Type = "treatment plant"
	d.Condition = "poor"

	a, err := ParseDraft(d)
	if err != nil {
		t.Fatal(err)
	}
	if a.Type != service.TreatmentPlant || a.Condition != service.Poor {
		t.Fatalf("type=%q condition=%q, want canonical values", a.Type, a.Condition)
	}
	if a.Latitude != 28.69 || a.Longitude != 77.29 {
		t.Fatalf("coords=(%v, %v)", a.Latitude, a.Longitude)
	}
	if a.Manufacturer != "Grundfos" || a.InstallationDate != "2021-04-12" {
		t.Fatalf("asset=%+v", a)
	}
}

func TestParseDraftReportsEveryField(t *testing.T) {
	_, err := ParseDraft(Draft{})
	verr, ok := err.(*service.ValidationError)
	if !ok {
		t.Fatalf("err=%T, want *service.ValidationError", err)
	}
	for _, f := range FormFields {
		if !verr.Has(f.Name) {
			t.Errorf("missing error for %s", f.Name)
		}
	}
}

func TestParseDraftFieldMessages(t *testing.T) {
	tests := []struct {
		field, value, want string
	}{
		{FieldLatitude, "not-a-number", "must be a number"},
		{FieldLatitude, "91", "must be between -90 and 90"},
		{FieldLongitude, "-180.5", "must be between -180 and 180"},
		{FieldLongitude, "NaN", "must be between -180 and 180"},
		{FieldInstallationDate, "12/04/2021", "must be a date (YYYY-MM-DD)"},
		{FieldManufacturer, "   ", "is required"},
		{FieldType, "Windmill", `unknown asset type "Windmill"`},
		{FieldCondition, "", "is required"},
	}
	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			d := validDraft()
			if err := d.Set(tt.field, tt.value); err != nil {
				t.Fatal(err)
			}
			_, err := ParseDraft(d)
			verr, ok := err.(*service.ValidationError)
			if !ok {
				t.Fatalf("err=%v, want validation error", err)
			}
			if got := verr.ByField()[tt.field]; got != tt.want {
				t.Fatalf("message=%q, want %q", got, tt.want)
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("fields=%v, want only %s", verr.Fields, tt.field)
			}
		})
	}
}

func TestDraftSetUnknownField(t *testing.T) {
	var d Draft
	if err := d.Set("colour", "red"); err == nil {
		t.Fatal("expected error for unknown field")
	}
	if got := d.Get("colour"); got != "" {
		t.Fatalf("Get(unknown)=%q", got)
	}
}

func TestDraftValuesRoundTrip(t *testing.T) {
	d := validDraft()
	var cp Draft
	for k, v := range d.Values() {
		if err := cp.Set(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if cp != d {
		t.Fatalf("copy=%+v, want %+v", cp, d)
	}
}
