package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	WebsiteID string `json:"website_id" validate:"required"`
	Name      string `json:"event_name" validate:"required,max=5"`
	Kind      string `json:"type" validate:"omitempty,oneof=pageview event"`
	Depth     int    `json:"depth" validate:"gte=0,lte=100"`
	Internal  string `json:"-" validate:"omitempty,min=2"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		assert.Nil(t, ValidateStruct(&sampleRequest{WebsiteID: "site", Name: "click", Depth: 50}))
	})

	t.Run("reports json field names", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{Name: "click"})
		require.NotNil(t, err)
		require.Len(t, err.Errors(), 1)
		assert.Equal(t, "website_id", err.Errors()[0].Field())
		assert.Equal(t, "required", err.Errors()[0].Tag())
		assert.Equal(t, "website_id is required", err.Error())
	})

	t.Run("messages include params", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{WebsiteID: "s", Name: "toolong", Kind: "other", Depth: 101, Internal: "x"})
		require.NotNil(t, err)

		messages := err.Error()
		assert.Contains(t, messages, "event_name must be at most 5 characters")
		assert.Contains(t, messages, "type must be one of: pageview event")
		assert.Contains(t, messages, "depth must be less than or equal to 100")
		assert.Contains(t, messages, "Internal must be at least 2 characters")
	})
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&sampleRequest{})
	require.NotNil(t, err)

	apiErr := err.ToAPIError()
	assert.Equal(t, CodeValidationError, apiErr.Code)
	assert.ElementsMatch(t, []string{"website_id", "event_name"}, apiErr.Fields)
	assert.Equal(t, 2, len(strings.Split(apiErr.Message, "; ")))
}
