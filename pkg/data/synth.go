package data

import (
	"math"
	"strconv"

	"churn/pkg/core"
)

// Level sets observed in the credit-card churn data.
var (
	EducationLevels = []string{"College", "Doctorate", "Graduate", "High School", "Post-Graduate", "Uneducated", "Unknown"}
	MaritalLevels   = []string{"Divorced", "Married", "Single", "Unknown"}
	IncomeLevels    = []string{"$120K +", "$40K - $60K", "$60K - $80K", "$80K - $120K", "Less than $40K", "Unknown"}
	CardLevels      = []string{"Blue", "Gold", "Platinum", "Silver"}
)

// Synthetic generates n labelled records shaped like the BankChurners table.
// Roughly one in six customers attrites; attriters transact less, carry a
// lower revolving balance and were inactive longer. Output depends only on
// seed.
func Synthetic(n int, seed int64) *Dataset {
	rnd := core.NewRand(seed)
	schema := BankChurnersSchema()
	ds := &Dataset{Schema: schema, Records: make([]Record, n)}

	pick := func(levels []string) string { return levels[rnd.Intn(len(levels))] }
	normal := func(mean, sd, lo, hi float64) float64 {
		return math.Min(hi, math.Max(lo, mean+sd*rnd.NormFloat64()))
	}

	for i := range ds.Records {
		attrited := rnd.Float64() < 0.16
		a := 0.0
		if attrited {
			a = 1
		}
		limit := normal(8600, 9000, 1438, 34516)
		util := normal(0.3-0.14*a, 0.25, 0, 0.999)
		revolving := math.Round(normal(1250-580*a, 800, 0, 2517))
		transCt := math.Round(normal(68-23*a, 20, 10, 139))
		transAmt := math.Round(normal(4650-1550*a, 3300, 510, 18484) * (0.6 + transCt/130))

		r := Record{
			ID:          strconv.Itoa(700000000 + i),
			Numeric:     make(map[string]float64, len(schema.Numeric)),
			Categorical: make(map[string]string, len(schema.Categorical)),
			Label:       "Existing Customer",
		}
		if attrited {
			r.Label = "Attrited Customer"
		}
		r.Numeric["Customer_Age"] = math.Round(normal(46, 8, 26, 73))
		r.Numeric["Dependent_count"] = float64(rnd.Intn(6))
		r.Numeric["Months_on_book"] = math.Round(normal(36, 8, 13, 56))
		r.Numeric["Total_Relationship_Count"] = math.Round(normal(3.9-0.6*a, 1.5, 1, 6))
		r.Numeric["Months_Inactive_12_mon"] = math.Round(normal(2.3+0.4*a, 1, 0, 6))
		r.Numeric["Contacts_Count_12_mon"] = math.Round(normal(2.4+0.6*a, 1.1, 0, 6))
		r.Numeric["Credit_Limit"] = math.Round(limit)
		r.Numeric["Total_Revolving_Bal"] = revolving
		r.Numeric["Avg_Open_To_Buy"] = math.Max(0, math.Round(limit-revolving))
		r.Numeric["Total_Amt_Chng_Q4_Q1"] = normal(0.77-0.08*a, 0.22, 0, 3.4)
		r.Numeric["Total_Trans_Amt"] = transAmt
		r.Numeric["Total_Trans_Ct"] = transCt
		r.Numeric["Total_Ct_Chng_Q4_Q1"] = normal(0.73-0.17*a, 0.23, 0, 3.7)
		r.Numeric["Avg_Utilization_Ratio"] = util

		if rnd.Float64() < 0.53 {
			r.Categorical["Gender"] = "F"
		} else {
			r.Categorical["Gender"] = "M"
		}
		r.Categorical["Education_Level"] = pick(EducationLevels)
		r.Categorical["Marital_Status"] = pick(MaritalLevels)
		r.Categorical["Income_Category"] = pick(IncomeLevels)
		card := "Blue"
		if u := rnd.Float64(); u > 0.93 {
			card = pick(CardLevels[1:])
		}
		r.Categorical["Card_Category"] = card
		ds.Records[i] = r
	}
	return ds
}
