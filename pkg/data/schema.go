package data

// Schema describes the fixed column layout of a customer table.
type Schema struct {
	ID          string
	Target      string
	Numeric     []string
	Categorical []string
	// Binary holds explicit two-level mappings. Categorical columns not listed
	// here are one-hot encoded.
	Binary map[string]map[string]float64
	// TargetLevels maps the raw attrition flag onto {0, 1}.
	TargetLevels map[string]int
}

const (
	Retained = 0
	Attrited = 1
)

// BankChurnersSchema returns the schema of the credit-card churn dataset.
func BankChurnersSchema() Schema {
	return Schema{
		ID:     "CLIENTNUM",
		Target: "Attrition_Flag",
		Numeric: []string{
			"Customer_Age",
			"Dependent_count",
			"Months_on_book",
			"Total_Relationship_Count",
			"Months_Inactive_12_mon",
			"Contacts_Count_12_mon",
			"Credit_Limit",
			"Total_Revolving_Bal",
			"Avg_Open_To_Buy",
			"Total_Amt_Chng_Q4_Q1",
			"Total_Trans_Amt",
			"Total_Trans_Ct",
			"Total_Ct_Chng_Q4_Q1",
			"Avg_Utilization_Ratio",
		},
		Categorical: []string{
			"Gender",
			"Education_Level",
			"Marital_Status",
			"Income_Category",
			"Card_Category",
		},
		Binary: map[string]map[string]float64{
			"Gender": {"M": 0, "F": 1},
		},
		TargetLevels: map[string]int{
			"Existing Customer": Retained,
			"Attrited Customer": Attrited,
		},
	}
}

// IsBinary reports whether col uses an explicit binary mapping.
func (s Schema) IsBinary(col string) bool {
	_, ok := s.Binary[col]
	return ok
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	out := s
	out.Numeric = append([]string(nil), s.Numeric...)
	out.Categorical = append([]string(nil), s.Categorical...)
	if s.Binary != nil {
		out.Binary = make(map[string]map[string]float64, len(s.Binary))
		for col, m := range s.Binary {
			cp := make(map[string]float64, len(m))
			for k, v := range m {
				cp[k] = v
			}
			out.Binary[col] = cp
		}
	}
	if s.TargetLevels != nil {
		out.TargetLevels = make(map[string]int, len(s.TargetLevels))
		for k, v := range s.TargetLevels {
			out.TargetLevels[k] = v
		}
	}
	return out
}

// Columns lists every column the reader expects, in file order.
func (s Schema) Columns() []string {
	out := make([]string, 0, 2+len(s.Numeric)+len(s.Categorical))
	if s.ID != "" {
		out = append(out, s.ID)
	}
	out = append(out, s.Target)
	out = append(out, s.Categorical...)
	out = append(out, s.Numeric...)
	return out
}
