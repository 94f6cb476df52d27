// internal/inference/results.go
package inference

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

// MatchRanking is the reply to a matching prompt.
type MatchRanking struct {
	Matches []RankedMatch `json:"matches" validate:"dive"`
}

type RankedMatch struct {
	OfferingID          string `json:"offering_id" validate:"required,uuid"`
	MatchScore          int    `json:"match_score" validate:"min=0,max=100"`
	PersonalizedSummary string `json:"personalized_summary" validate:"required"`
}

// SimilarityRanking is the reply to a similarity prompt.
type SimilarityRanking struct {
	Items []SimilarCandidate `json:"similar_offerings" validate:"dive"`
}

type SimilarCandidate struct {
	OfferingID      string   `json:"offering_id" validate:"required,uuid"`
	SimilarityScore int      `json:"similarity_score" validate:"min=0,max=100"`
	Rationale       string   `json:"rationale" validate:"required"`
	MatchReasons    []string `json:"match_reasons" validate:"min=1,dive,required"`
}

// ExtractedOffering is the reply to a catalog extraction prompt. Optional
// fields the model could not determine are null, never guessed.
type ExtractedOffering struct {
	Name          string  `json:"name" validate:"required,max=255"`
	Description   string  `json:"description" validate:"required"`
	Category      string  `json:"category" validate:"required,category"`
	Vertical      string  `json:"vertical" validate:"required,vertical"`
	BusinessModel string  `json:"business_model" validate:"required,business_model"`
	City          *string `json:"city"`
	Country       *string `json:"country"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone"`
	Whatsapp      *string `json:"whatsapp"`
	PriceRange    *string `json:"price_range"`
}

// Decode unmarshals raw into T and validates it. Any failure is
// ErrInvalidOutput; model output is untrusted input.
func Decode[T any](raw json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := utils.ValidateStruct(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return &out, nil
}

func nullableString(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: description, Nullable: true}
}

func MatchSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"matches": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"offering_id":          {Type: jsonschema.String, Description: "id of a candidate offering"},
						"match_score":          {Type: jsonschema.Integer, Description: "0-100 fit for the problem"},
						"personalized_summary": {Type: jsonschema.String, Description: "why this offering solves the client's problem, without contact details"},
					},
					Required: []string{"offering_id", "match_score", "personalized_summary"},
				},
			},
		},
		Required: []string{"matches"},
	}
}

func SimilaritySchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"similar_offerings": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"offering_id":      {Type: jsonschema.String},
						"similarity_score": {Type: jsonschema.Integer, Description: "0-100"},
						"rationale":        {Type: jsonschema.String, Description: "no site, email, phone or whatsapp"},
						"match_reasons": {
							Type:  jsonschema.Array,
							Items: &jsonschema.Definition{Type: jsonschema.String},
						},
					},
					Required: []string{"offering_id", "similarity_score", "rationale", "match_reasons"},
				},
			},
		},
		Required: []string{"similar_offerings"},
	}
}

func ExtractionSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"name":           {Type: jsonschema.String},
			"description":    {Type: jsonschema.String},
			"category":       {Type: jsonschema.String, Enum: models.Categories},
			"vertical":       {Type: jsonschema.String, Enum: models.Verticals},
			"business_model": {Type: jsonschema.String, Enum: models.BusinessModels},
			"city":           nullableString("null when unknown"),
			"country":        nullableString("null when unknown"),
			"email":          nullableString("null unless present in the input"),
			"phone":          nullableString("null unless present in the input"),
			"whatsapp":       nullableString("null unless present in the input"),
			"price_range":    nullableString("null when unknown"),
		},
		Required: []string{"name", "description", "category", "vertical", "business_model"},
	}
}
