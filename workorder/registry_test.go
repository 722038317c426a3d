package workorder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/christianmcgivern/tech-app/errors"
)

func TestCreateOrder_Validation(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateOrder("", "no id", PriorityMedium)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderID)

	_, err = r.CreateOrder("wo-1", "bad priority", Priority(0))
	assert.ErrorIs(t, err, apperrors.ErrInvalidPriority)

	_, err = r.CreateOrder("wo-1", "first", PriorityMedium)
	require.NoError(t, err)

	_, err = r.CreateOrder("wo-1", "duplicate", PriorityHigh)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateOrder)
}

func TestQueue_DescendingPriorityInvariant(t *testing.T) {
	r := NewRegistry()
	priorities := []Priority{
		PriorityLow, PriorityUrgent, PriorityMedium, PriorityHigh,
		PriorityMedium, PriorityLow, PriorityUrgent, PriorityHigh,
	}

	for i, p := range priorities {
		_, err := r.CreateOrder(fmt.Sprintf("wo-%d", i), "job", p)
		require.NoError(t, err)
		// The invariant holds after every insertion.
		assert.True(t, r.ValidateQueueIntegrity(), "violated after insertion %d", i)
	}

	queue := r.GetQueue()
	require.Len(t, queue, len(priorities))
	for i := 0; i+1 < len(queue); i++ {
		assert.GreaterOrEqual(t, queue[i].Priority, queue[i+1].Priority)
	}
}

func TestQueue_FIFOAmongEqualPriorities(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateOrder("first", "job", PriorityMedium)
	require.NoError(t, err)
	_, err = r.CreateOrder("second", "job", PriorityMedium)
	require.NoError(t, err)
	_, err = r.CreateOrder("urgent", "job", PriorityUrgent)
	require.NoError(t, err)

	queue := r.GetQueue()
	require.Len(t, queue, 3)
	assert.Equal(t, "urgent", queue[0].ID)
	assert.Equal(t, "first", queue[1].ID)
	assert.Equal(t, "second", queue[2].ID)
}

func TestAssignOrder_HappyPath(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "fix furnace", PriorityHigh)
	require.NoError(t, err)

	require.NoError(t, r.AssignOrder("wo-1", "tech-7"))

	order := r.GetOrder("wo-1")
	assert.Equal(t, StatusAssigned, order.Status)
	assert.Equal(t, "tech-7", order.AssignedTechnician)
}

func TestAssignOrder_NonPendingNotMutated(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "job", PriorityMedium)
	require.NoError(t, err)
	require.NoError(t, r.AssignOrder("wo-1", "tech-1"))

	err = r.AssignOrder("wo-1", "tech-2")

	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)
	order := r.GetOrder("wo-1")
	assert.Equal(t, StatusAssigned, order.Status)
	assert.Equal(t, "tech-1", order.AssignedTechnician)
}

func TestStartOrder_RequiresAssigned(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "job", PriorityMedium)
	require.NoError(t, err)

	assert.ErrorIs(t, r.StartOrder("wo-1"), apperrors.ErrInvalidStatus)

	require.NoError(t, r.AssignOrder("wo-1", "tech-1"))
	require.NoError(t, r.StartOrder("wo-1"))

	order := r.GetOrder("wo-1")
	assert.Equal(t, StatusInProgress, order.Status)
	assert.False(t, order.StartedAt.IsZero())
}

func TestCompleteOrder_NotesAuthoredByTechnician(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "job", PriorityMedium)
	require.NoError(t, err)
	require.NoError(t, r.AssignOrder("wo-1", "tech-9"))
	require.NoError(t, r.StartOrder("wo-1"))

	require.NoError(t, r.CompleteOrder("wo-1", "replaced compressor"))

	order := r.GetOrder("wo-1")
	assert.Equal(t, StatusCompleted, order.Status)
	assert.False(t, order.CompletedAt.IsZero())
	require.Len(t, order.Notes, 1)
	assert.Equal(t, "replaced compressor", order.Notes[0].Content)
	assert.Equal(t, "tech-9", order.Notes[0].Author)

	// Completed orders leave the dispatch queue.
	assert.Equal(t, 0, r.QueueSize())
}

func TestCompleteOrder_RequiresInProgress(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "job", PriorityMedium)
	require.NoError(t, err)

	assert.ErrorIs(t, r.CompleteOrder("wo-1", ""), apperrors.ErrInvalidStatus)
}

func TestCancelOrder_FromAnyNonTerminalStatus(t *testing.T) {
	r := NewRegistry()

	for i, setup := range []func(id string){
		func(string) {},
		func(id string) { require.NoError(t, r.AssignOrder(id, "t")) },
		func(id string) {
			require.NoError(t, r.AssignOrder(id, "t"))
			require.NoError(t, r.StartOrder(id))
		},
	} {
		id := fmt.Sprintf("wo-%d", i)
		_, err := r.CreateOrder(id, "job", PriorityMedium)
		require.NoError(t, err)
		setup(id)

		require.NoError(t, r.CancelOrder(id, "customer cancelled"))
		assert.Equal(t, StatusCancelled, r.GetOrder(id).Status)
	}

	// Terminal orders cannot be cancelled again.
	assert.ErrorIs(t, r.CancelOrder("wo-0", ""), apperrors.ErrInvalidStatus)
}

func TestHoldAndResume_RestoresPriorStatus(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "job", PriorityMedium)
	require.NoError(t, err)
	require.NoError(t, r.AssignOrder("wo-1", "tech-1"))

	require.NoError(t, r.HoldOrder("wo-1"))
	assert.Equal(t, StatusOnHold, r.GetOrder("wo-1").Status)

	require.NoError(t, r.ResumeOrder("wo-1"))
	assert.Equal(t, StatusAssigned, r.GetOrder("wo-1").Status)

	// Resuming an order that is not on hold fails.
	assert.ErrorIs(t, r.ResumeOrder("wo-1"), apperrors.ErrInvalidStatus)
}

func TestUpdateLocation_InvalidCoordinatesLeaveOrderUnchanged(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateOrder("wo-1", "job", PriorityMedium)
	require.NoError(t, err)
	require.NoError(t, r.UpdateLocation("wo-1", 40.7, -74.0))

	assert.ErrorIs(t, r.UpdateLocation("wo-1", 95, -74.0), apperrors.ErrInvalidLocation)
	assert.ErrorIs(t, r.UpdateLocation("wo-1", 40.7, 200), apperrors.ErrInvalidLocation)

	order := r.GetOrder("wo-1")
	require.NotNil(t, order.Location)
	assert.Equal(t, 40.7, order.Location.Latitude())
	assert.Equal(t, -74.0, order.Location.Longitude())
}

func TestGetOrder_Unknown(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.GetOrder("missing"))
	assert.ErrorIs(t, r.AssignOrder("missing", "t"), apperrors.ErrOrderNotFound)
	assert.ErrorIs(t, r.UpdateLocation("missing", 0, 0), apperrors.ErrOrderNotFound)
}
