package namespace

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDedupesAndKeepsOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("mechanical", []string{"b", "a", "b", " ", "c"})
	assert.Equal(t, []string{"b", "a", "c"}, r.Allowed("mechanical"))

	r.Register("mechanical", []string{"z"})
	assert.Equal(t, []string{"z"}, r.Allowed("mechanical"), "register replaces")
}

func TestAllowedUnknownAgentIsEmpty(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	assert.Empty(t, r.Allowed("nobody"))

	_, err := r.Check("nobody", "")
	assert.ErrorIs(t, err, ErrPermissionDenied, "unknown agents fail closed")
}

func TestCheckDefaultsToFirstNamespace(t *testing.T) {
	r := NewRegistry(map[string][]string{"ece": {"n1", "n2"}})
	for i := 0; i < 5; i++ {
		ns, err := r.Check("ece", "")
		require.NoError(t, err)
		assert.Equal(t, "n1", ns)
	}
}

func TestCheckDeniesForeignNamespace(t *testing.T) {
	r := NewRegistry(map[string][]string{
		"mechanical": {"mechanical_namespace"},
		"civil":      {"civil_namespace"},
	})

	_, err := r.Check("mechanical", "civil_namespace")
	require.Error(t, err)

	var denied *PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "mechanical", denied.AgentID)
	assert.Equal(t, "civil_namespace", denied.Namespace)
	assert.Equal(t, []string{"mechanical_namespace"}, denied.Allowed)
}

func TestFilterIsBestEffort(t *testing.T) {
	r := NewRegistry(map[string][]string{"ece": {"ece_namespace", "cse_namespace"}})

	got, err := r.Filter("ece", []string{"civil_namespace", "cse_namespace", "ece_namespace"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cse_namespace", "ece_namespace"}, got)

	_, err = r.Filter("ece", []string{"civil_namespace"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = r.Filter("ece", nil)
	assert.ErrorIs(t, err, ErrNoNamespaces)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"ece_namespace"}, cfg[AgentECETrack])
	assert.Equal(t, []string{"schedule_maker_namespace"}, cfg[AgentScheduleMaker])
	assert.Len(t, cfg, 13)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = r.Check("civil", "")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Register("civil", []string{"civil_namespace"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"civil_namespace"}, r.Allowed("civil"))
}
