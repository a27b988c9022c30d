package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	SexMale   = "male"
	SexFemale = "female"

	DefaultSex        = SexMale
	DefaultAge        = "40"
	DefaultAnatomSite = "torso"

	maxAge = 120
)

// Form field names of the clinical metadata.
const (
	FieldSex        = "sex"
	FieldAge        = "age"
	FieldAnatomSite = "anatom_site"
)

// ParseClinicalInfo validates the clinical fields of a submitted form.
// Defaults apply only to fields that were not sent at all; a field sent
// empty is validated like any other value.
func ParseClinicalInfo(form map[string][]string, meta Metadata) (ClinicalInfo, error) {
	sex := strings.ToLower(strings.TrimSpace(formValue(form, FieldSex, DefaultSex)))
	age := strings.TrimSpace(formValue(form, FieldAge, DefaultAge))
	anatomSite := strings.ToLower(strings.TrimSpace(formValue(form, FieldAnatomSite, DefaultAnatomSite)))

	if sex != SexMale && sex != SexFemale {
		return ClinicalInfo{}, invalid("Sex must be 'male' or 'female'")
	}

	if !lo.Contains(meta.AnatomSiteCategories, anatomSite) {
		quoted := lo.Map(meta.AnatomSiteCategories, func(site string, _ int) string {
			return "'" + site + "'"
		})
		return ClinicalInfo{}, invalid(fmt.Sprintf("Invalid anatomical site. Must be one of: [%s]",
			strings.Join(quoted, ", ")))
	}

	years, err := parseAge(age)
	if err != nil || math.IsNaN(years) || years <= 0 || years > maxAge {
		return ClinicalInfo{}, invalid("Age must be a number between 1 and 120")
	}

	return ClinicalInfo{Sex: sex, Age: years, AnatomSite: anatomSite}, nil
}

func formValue(form map[string][]string, key, defaultVal string) string {
	values, ok := form[key]
	if !ok {
		return defaultVal
	}
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// parseAge accepts decimal notation only. Hex floats such as 0x1p5 are
// rejected.
func parseAge(age string) (float64, error) {
	digits := strings.ToLower(strings.TrimLeft(age, "+-"))
	if strings.HasPrefix(digits, "0x") {
		return 0, fmt.Errorf("unsupported number format %q", age)
	}
	return strconv.ParseFloat(age, 64)
}

// Encode maps validated clinical info onto the scalar model inputs.
// Age is min-max scaled with the training range and is not clamped.
func Encode(info ClinicalInfo, meta Metadata) Features {
	return Features{
		Sex:        lo.Ternary[float32](info.Sex == SexFemale, 1, 0),
		AnatomSite: float32(lo.IndexOf(meta.AnatomSiteCategories, info.AnatomSite)),
		Age:        float32((info.Age - meta.AgeMin) / (meta.AgeMax - meta.AgeMin)),
	}
}
