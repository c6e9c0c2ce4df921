package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crm-scheduler/internal/persistence"
)

func TestMemberService_CreateMember(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes and persists", func(t *testing.T) {
		repo := newMemberRepoStub()
		svc := NewMemberServiceWithLogger(repo, nil, sequentialIDs("m"), fixedNow, discardLogger())

		member, err := svc.CreateMember(ctx, MemberInput{
			DisplayName: " Alice ",
			Email:       "Alice@Example.com ",
			WorkStart:   "9:00",
			WorkEnd:     "17:30",
			WorkingDays: []time.Weekday{time.Friday, time.Monday, time.Monday},
		})
		require.NoError(t, err)
		assert.Equal(t, "m-1", member.ID)
		assert.Equal(t, "Alice", member.DisplayName)
		assert.Equal(t, "alice@example.com", member.Email)
		assert.Equal(t, "UTC", member.Timezone)
		assert.Equal(t, "09:00", member.WorkStart)
		assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, member.WorkingDays)

		stored, err := repo.GetMember(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, "17:30", stored.WorkEnd)
	})

	t.Run("validation", func(t *testing.T) {
		svc := NewMemberService(newMemberRepoStub(), sequentialIDs("m"), fixedNow)

		cases := map[string]struct {
			input MemberInput
			field string
		}{
			"missing name":     {MemberInput{WorkStart: "09:00", WorkEnd: "17:00"}, "display_name"},
			"bad email":        {MemberInput{DisplayName: "x", Email: "not-an-email", WorkStart: "09:00", WorkEnd: "17:00"}, "email"},
			"unknown timezone": {MemberInput{DisplayName: "x", Timezone: "Mars/Olympus", WorkStart: "09:00", WorkEnd: "17:00"}, "timezone"},
			"overnight window": {MemberInput{DisplayName: "x", WorkStart: "22:00", WorkEnd: "06:00"}, "work_end"},
			"bad clock":        {MemberInput{DisplayName: "x", WorkStart: "nine", WorkEnd: "17:00"}, "work_start"},
			"bad weekday":      {MemberInput{DisplayName: "x", WorkStart: "09:00", WorkEnd: "17:00", WorkingDays: []time.Weekday{9}}, "working_days"},
		}
		for name, tc := range cases {
			_, err := svc.CreateMember(ctx, tc.input)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, name)
			assert.Contains(t, vErr.FieldErrors, tc.field, name)
		}
	})
}

func TestMemberService_UpdateDeleteList(t *testing.T) {
	ctx := context.Background()
	repo := newMemberRepoStub(
		persistence.Member{ID: "m2", DisplayName: "zoe", Timezone: "UTC", WorkStart: "09:00", WorkEnd: "17:00", CreatedAt: testNow},
		persistence.Member{ID: "m1", DisplayName: "Bea", Timezone: "UTC", WorkStart: "09:00", WorkEnd: "17:00", CreatedAt: testNow},
	)
	svc := NewMemberService(repo, nil, fixedNow)

	members, err := svc.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Bea", members[0].DisplayName)

	updated, err := svc.UpdateMember(ctx, UpdateMemberParams{MemberID: "m2", Input: MemberInput{
		DisplayName: "Zoe", Timezone: "Europe/Berlin", WorkStart: "08:00", WorkEnd: "16:00",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", updated.Timezone)
	assert.Equal(t, testNow, updated.CreatedAt)

	_, err = svc.UpdateMember(ctx, UpdateMemberParams{MemberID: "ghost", Input: MemberInput{DisplayName: "x", WorkStart: "09:00", WorkEnd: "17:00"}})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteMember(ctx, "m1"))
	_, err = svc.GetMember(ctx, "m1")
	require.ErrorIs(t, err, ErrNotFound)
}
