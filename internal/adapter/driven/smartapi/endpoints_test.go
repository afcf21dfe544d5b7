package smartapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/algopilot/internal/adapter/driven/smartapi"
)

func TestHostPolicy_Candidates(t *testing.T) {
	policy := smartapi.HostPolicy{
		"portfolio.positions": {"https://b.example/", "https://a.example", "", "https://b.example"},
	}

	assert.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		policy.Candidates("portfolio.positions", "https://a.example/"),
	)
	assert.Equal(t,
		[]string{"https://a.example"},
		policy.Candidates("user.login", "https://a.example"),
	)
}

func TestDefaultHostPolicy(t *testing.T) {
	policy := smartapi.DefaultHostPolicy()

	assert.Equal(t,
		[]string{smartapi.DefaultBaseURL, smartapi.AlternateBaseURL},
		policy.Candidates(smartapi.EndpointPositions.Name, smartapi.DefaultBaseURL),
	)
	assert.Equal(t,
		[]string{smartapi.DefaultBaseURL, smartapi.AlternateBaseURL},
		policy.Candidates(smartapi.EndpointGainersLosers.Name, smartapi.DefaultBaseURL),
	)
	assert.Len(t, policy.Candidates(smartapi.EndpointLogin.Name, smartapi.DefaultBaseURL), 1)
}
