package services

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func assemblerActivity() *domain.Activity {
	return &domain.Activity{
		Ref:         domain.NewEventRef(domain.ActivityKindAppointment, 11),
		Schedule:    s1,
		Start:       at("2024-01-10", 9, 0),
		End:         at("2024-01-10", 9, 30),
		Status:      "booked",
		Description: "follow-up",
		Participants: []domain.ParticipantLink{
			{Role: "client", Party: domain.PartyRef{Kind: "person", ID: 5}},
			{Role: "location", Party: domain.PartyRef{Kind: "room", ID: 2}},
			{Role: "note"},
		},
	}
}

func TestEventAssembler_ResolvesNames(t *testing.T) {
	ctx := context.Background()
	names := new(mockNames)
	names.On("StatusName", ctx, "booked").Return("Booked", nil)
	names.On("ParticipantName", ctx, domain.PartyRef{Kind: "person", ID: 5}).Return("Ada Lovelace", nil)
	names.On("ParticipantName", ctx, domain.PartyRef{Kind: "room", ID: 2}).Return("Room 2", nil)

	ev := NewEventAssembler(names, nil).Assemble(ctx, assemblerActivity())

	assert.Equal(t, "Booked", ev.StatusName)
	assert.Equal(t, "follow-up", ev.Description)
	require.Len(t, ev.Participants, 3)
	assert.Equal(t, "Ada Lovelace", ev.Participants[0].Name)
	assert.Equal(t, "Room 2", ev.Participants[1].Name)
	assert.Equal(t, "", ev.Participants[2].Name)
	names.AssertExpectations(t)
}

func TestEventAssembler_UnresolvedNamesStayEmpty(t *testing.T) {
	ctx := context.Background()
	names := new(mockNames)
	names.On("StatusName", ctx, "booked").Return("", errors.New("lookup failed"))
	names.On("ParticipantName", ctx, mock.Anything).Return("", errors.New("not found"))

	ev := NewEventAssembler(names, nil).Assemble(ctx, assemblerActivity())

	require.NotNil(t, ev)
	assert.Equal(t, "", ev.StatusName)
	assert.Equal(t, "", ev.Participants[0].Name)
	assert.Equal(t, at("2024-01-10", 9, 0), ev.Start)
}

func TestEventAssembler_WithoutResolver(t *testing.T) {
	a := assemblerActivity()
	ev := NewEventAssembler(nil, nil).Assemble(context.Background(), a)

	assert.Equal(t, a.Ref, ev.Ref)
	assert.Equal(t, "", ev.StatusName)

	// the projection does not share participant storage with the activity
	ev.Participants[0].Role = "changed"
	assert.Equal(t, "client", a.Participants[0].Role)
}
