package data

import (
	"bytes"
	"strings"
	"testing"

	"churn/pkg/core"
)

const header = "CLIENTNUM,Attrition_Flag,Customer_Age,Gender,Dependent_count,Education_Level,Marital_Status,Income_Category,Card_Category,Months_on_book,Total_Relationship_Count,Months_Inactive_12_mon,Contacts_Count_12_mon,Credit_Limit,Total_Revolving_Bal,Avg_Open_To_Buy,Total_Amt_Chng_Q4_Q1,Total_Trans_Amt,Total_Trans_Ct,Total_Ct_Chng_Q4_Q1,Avg_Utilization_Ratio,Extra"

const row = `768805383,Existing Customer,45,M,3,High School,Married,$60K - $80K,Blue,39,5,1,3,12691,777,11914,1.335,1144,42,1.625,0.061,ignored`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("\ufeff"+header+"\n"+row+"\n"), BankChurnersSchema(), ReadOptions{RequireLabel: true})
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 1 {
		t.Fatalf("got %d records", ds.Len())
	}
	r := ds.Records[0]
	if r.ID != "768805383" || r.Label != "Existing Customer" {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.Numeric["Credit_Limit"] != 12691 || r.Categorical["Income_Category"] != "$60K - $80K" {
		t.Fatalf("fields not parsed: %+v", r)
	}
}

func TestReadCSVSchemaErrors(t *testing.T) {
	schema := BankChurnersSchema()
	tests := []struct {
		name  string
		input string
		opts  ReadOptions
	}{
		{"empty", "", ReadOptions{}},
		{"missing column", strings.Replace(header, "Credit_Limit", "Limit", 1) + "\n" + row, ReadOptions{}},
		{"missing target", strings.Replace(header, "Attrition_Flag", "Flag", 1) + "\n" + row, ReadOptions{RequireLabel: true}},
		{"bad number", header + "\n" + strings.Replace(row, "12691", "lots", 1), ReadOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input), schema, tt.opts); !core.IsSchema(err) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}

	unlabelled := strings.Replace(header, "Attrition_Flag", "Flag", 1) + "\n" + row
	ds, err := ReadCSV(strings.NewReader(unlabelled), schema, ReadOptions{})
	if err != nil || ds.Records[0].Label != "" {
		t.Fatalf("scoring batch should read without labels: %v", err)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	ds := Synthetic(50, 3)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		t.Fatal(err)
	}
	back, err := ReadCSV(&buf, ds.Schema, ReadOptions{RequireLabel: true})
	if err != nil {
		t.Fatal(err)
	}
	if back.Len() != ds.Len() {
		t.Fatalf("got %d records, want %d", back.Len(), ds.Len())
	}
	for i := range ds.Records {
		a, b := ds.Records[i], back.Records[i]
		if a.ID != b.ID || a.Label != b.Label {
			t.Fatalf("record %d header differs", i)
		}
		for col, v := range a.Numeric {
			if b.Numeric[col] != v {
				t.Fatalf("record %d %s: %v != %v", i, col, b.Numeric[col], v)
			}
		}
		for col, v := range a.Categorical {
			if b.Categorical[col] != v {
				t.Fatalf("record %d %s: %q != %q", i, col, b.Categorical[col], v)
			}
		}
	}
}

func TestSynthetic(t *testing.T) {
	a, b := Synthetic(500, 9), Synthetic(500, 9)
	attrited := 0
	for i := range a.Records {
		if a.Records[i].Numeric["Total_Trans_Amt"] != b.Records[i].Numeric["Total_Trans_Amt"] {
			t.Fatal("same seed produced different data")
		}
		if a.Records[i].Label == "Attrited Customer" {
			attrited++
		}
		if len(a.Records[i].Numeric) != len(a.Schema.Numeric) || len(a.Records[i].Categorical) != len(a.Schema.Categorical) {
			t.Fatalf("record %d incomplete", i)
		}
	}
	if attrited < 40 || attrited > 130 {
		t.Fatalf("%d attrited of 500", attrited)
	}
}

func TestIsMissing(t *testing.T) {
	for _, v := range []string{"", " ", "NA", "NaN", "nan"} {
		if !IsMissing(v) {
			t.Fatalf("%q should be missing", v)
		}
	}
	if IsMissing("Unknown") {
		t.Fatal("Unknown is a real level")
	}
}
