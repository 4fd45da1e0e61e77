package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBaseQueryNoFilter(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", "t1", Filter{})
	assert.Equal(t, "SELECT COUNT(1) FROM audit_events WHERE tenant_id = $1", query)
	assert.Equal(t, []any{"t1"}, args)
}

func TestBuildBaseQueryNumbersPlaceholders(t *testing.T) {
	query, args := buildBaseQuery("SELECT id", "t1", Filter{Action: ActionPayrollRun, EntityID: "run-1", ActorUser: "u1"})
	assert.Equal(t, "SELECT id FROM audit_events WHERE tenant_id = $1 AND action = $2 AND entity_id = $3 AND actor_user_id = $4", query)
	assert.Equal(t, []any{"t1", ActionPayrollRun, "run-1", "u1"}, args)
}

func TestMarshalState(t *testing.T) {
	out, err := marshalState(nil)
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = marshalState(map[string]int{"processed": 2})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"processed":2}`, string(out))
}
