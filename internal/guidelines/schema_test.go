package guidelines

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSchemaAcceptsWellFormedGuideline(t *testing.T) {
	g := validGuideline("security-review")
	assert.NoError(t, g.ValidateSchema())
}

func TestValidateSchemaRejectsRequirementMissingKind(t *testing.T) {
	g := validGuideline("security-review")
	g.Requirements = []Requirement{{Name: "GitHub API access"}}
	assert.Error(t, g.ValidateSchema())
}

func TestValidateSchemaRejectsUnknownRequirementKind(t *testing.T) {
	g := validGuideline("security-review")
	g.Requirements = []Requirement{{Name: "x", Kind: "totally_unknown"}}
	assert.Error(t, g.ValidateSchema())
}
