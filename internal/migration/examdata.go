package migration

import (
	_ "embed"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed components.yaml
var componentsYAML []byte

// astigToleranceDiopters is the K1/K2 difference below which an eye is
// treated as non-astigmatic when deriving the keratometer-full booleans.
const astigToleranceDiopters = 0.01

type fieldSpec struct {
	Source string `yaml:"source"`
	Column string `yaml:"column"`
	Kind   string `yaml:"kind"`
}

type componentSpec struct {
	Name   string               `yaml:"name"`
	Fields map[string]fieldSpec `yaml:"fields"`
}

type componentCatalog struct {
	Components []componentSpec `yaml:"components"`
}

func loadComponentCatalog() ([]componentSpec, error) {
	var catalog componentCatalog
	if err := yaml.Unmarshal(componentsYAML, &catalog); err != nil {
		return nil, fmt.Errorf("parse component catalog: %w", err)
	}
	if len(catalog.Components) == 0 {
		return nil, fmt.Errorf("component catalog is empty")
	}
	return catalog.Components, nil
}

// assembleExamData builds the exam_data mapping for one eye-test row and its
// (possibly absent) expanded companion. Components whose every field is null
// are dropped.
func assembleExamData(catalog []componentSpec, main Row, exp Row) map[string]any {
	data := make(map[string]any)

	for _, comp := range catalog {
		values := make(map[string]any, len(comp.Fields))
		for field, spec := range comp.Fields {
			raw := ""
			switch spec.Source {
			case "main":
				raw = main.Get(spec.Column)
			case "exp":
				if exp != nil {
					raw = exp.Get(spec.Column)
				}
			}
			if v := convertField(raw, spec.Kind); v != nil {
				values[field] = v
			}
		}

		if comp.Name == "keratometer-full" {
			deriveAstigmatism(values)
		}

		if len(values) > 0 {
			data[comp.Name] = values
		}
	}

	return data
}

func convertField(raw, kind string) any {
	if raw == "" {
		return nil
	}
	switch kind {
	case "number":
		if f := ParseNumber(raw); f != nil {
			return *f
		}
	case "va":
		if f := ParseVisualAcuity(raw); f != nil {
			return *f
		}
	case "int":
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case "text":
		return raw
	}
	return nil
}

// deriveAstigmatism adds the r_astig/l_astig booleans from the K1/K2 delta.
func deriveAstigmatism(values map[string]any) {
	for _, eye := range []string{"r", "l"} {
		k1, ok1 := values[eye+"_k1"].(float64)
		k2, ok2 := values[eye+"_k2"].(float64)
		if ok1 && ok2 {
			values[eye+"_astig"] = math.Abs(k1-k2) > astigToleranceDiopters
		}
	}
}
