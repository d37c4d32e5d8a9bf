package model

import "time"

// BoundingBox locates an extracted value on the label image, in pixels.
type BoundingBox struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// ExtractedField is one field the OCR + classification step believes it
// found on a label image.
type ExtractedField struct {
	FieldName   FieldName    `json:"field_name" yaml:"field_name"`
	Value       string       `json:"value" yaml:"value"`
	Confidence  int          `json:"confidence" yaml:"confidence"`
	BoundingBox *BoundingBox `json:"bounding_box,omitempty" yaml:"bounding_box,omitempty"`
}

// Application is the applicant's declared label data.
type Application struct {
	ID              string               `json:"id" yaml:"id"`
	Category        BeverageCategory     `json:"category" yaml:"category"`
	ContainerSizeML float64              `json:"container_size_ml" yaml:"container_size_ml"`
	DeclaredValues  map[FieldName]string `json:"declared_values" yaml:"declared_values"`
}

// ValidationResult is one persisted adjudication of an application. Results
// are append-only: a re-analysis stores a new result and marks the previous
// one superseded.
type ValidationResult struct {
	ID                   string           `json:"id"`
	ApplicationID        string           `json:"application_id"`
	Category             BeverageCategory `json:"category"`
	ContainerSizeML      float64          `json:"container_size_ml"`
	Verdicts             []FieldVerdict   `json:"verdicts"`
	Disposition          Disposition      `json:"disposition"`
	CorrectionWindowDays int              `json:"correction_window_days,omitempty"`
	Deadline             *time.Time       `json:"deadline,omitempty"`
	Confidence           int              `json:"confidence"`
	Superseded           bool             `json:"superseded"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Adjudication returns the disposition portion of the result.
func (r *ValidationResult) Adjudication() Adjudication {
	return Adjudication{
		Disposition:          r.Disposition,
		CorrectionWindowDays: r.CorrectionWindowDays,
	}
}
